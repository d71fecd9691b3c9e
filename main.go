package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/WattTime/climate-trace-metamodeling/datahandler"
)

func main() {
	paramsFile := flag.String("params", "params.json", "path to the database credentials file")
	source := flag.String("source", "climate-trace", "reporting entity to load")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := context.Background()

	handler, err := datahandler.Connect(ctx, *paramsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to climatetrace")
	}
	handler = handler.WithLogger(log)

	// Example of loading entity-level emission rows
	data, err := handler.LoadData(ctx, *source, datahandler.LoadOptions{})
	if err != nil {
		log.Fatal().Err(err).Str("source", *source).Msg("load emission rows")
	}
	log.Info().Int("rows", len(data.Rows)).Strs("columns", data.Columns).Msg("loaded emission rows")

	// Example of loading the GWP coefficient lookup
	ghgs, err := handler.GetGHGs(ctx, "")
	if err != nil {
		log.Fatal().Err(err).Msg("load gwp coefficients")
	}
	log.Info().Int("gases", len(ghgs.Rows)).Msg("loaded gwp coefficients")
}
