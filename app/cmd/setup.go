package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dynavault/dynavault/eventstore/dynamodb"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run dynavault setup",
	Long:  "Creates the journal and snapshot tables with their aggregate-id indexes, and enables TTL on the snapshot table",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		client, err := dynamodb.NewClient(ctx, appConfig.DynamoDb)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not set up DynamoDB client")
		}
		log.Info().Msg("Setting up tables")
		if err := dynamodb.SetupTables(ctx, client, appConfig.EventStore); err != nil {
			log.Fatal().Err(err).Msg("Could not set up tables")
		}
		log.Info().Msg("Setup complete.")
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
