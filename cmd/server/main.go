package main

import (
	"context"
	"flag"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/saidin/matchbook/internal/common"
	"github.com/saidin/matchbook/internal/engine"
	"github.com/saidin/matchbook/internal/net"
)

// pairSpec is one entry of the comma-separated -pairs flag:
// "id:base:quote:listingPrice".
type pairSpec struct {
	id, base, quote string
	listingPrice    float64
}

func main() {
	address := flag.String("address", "0.0.0.0", "address to listen on")
	port := flag.Int("port", 9001, "port to listen on")
	pairFlags := flag.String("pairs", "BTC-USD:BTC:USD:50000,ETH-USD:ETH:USD:3000",
		"comma-separated list of id:base:quote:listingPrice pairs to host")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	matcher := engine.NewMatcher()
	for _, spec := range parsePairSpecs(*pairFlags) {
		listingPrice, err := common.Of(spec.listingPrice)
		if err != nil {
			log.Fatal().Err(err).Str("pair", spec.id).Msg("invalid listing price")
		}
		if err := matcher.AddPair(spec.id, spec.base, spec.quote, listingPrice); err != nil {
			log.Fatal().Err(err).Str("pair", spec.id).Msg("unable to register pair")
		}
		log.Info().Str("pair", spec.id).Str("base", spec.base).Str("quote", spec.quote).Msg("pair registered")
	}

	srv := net.New(*address, *port, matcher)
	go srv.Run(ctx)
	<-ctx.Done()
}

func parsePairSpecs(raw string) []pairSpec {
	var specs []pairSpec
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) != 4 {
			log.Error().Str("entry", entry).Msg("malformed pair spec, skipping")
			continue
		}
		price, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			log.Error().Str("entry", entry).Err(err).Msg("malformed listing price, skipping")
			continue
		}
		specs = append(specs, pairSpec{id: fields[0], base: fields[1], quote: fields[2], listingPrice: price})
	}
	return specs
}
