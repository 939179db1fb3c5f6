package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/dynavault/dynavault/internal/config"
)

const tableWaitTimeout = 2 * time.Minute

// SetupTables provisions the journal and snapshot tables with their
// aggregate-id secondary indexes and enables TTL on the snapshot table.
// It is idempotent: rerunning against existing tables is a no-op.
func SetupTables(ctx context.Context, client *ddb.Client, conf config.EventStore) error {
	if err := createTable(ctx, client, conf.JournalTableName, conf.JournalAidIndexName); err != nil {
		return err
	}
	if err := createTable(ctx, client, conf.SnapshotTableName, conf.SnapshotAidIndexName); err != nil {
		return err
	}
	return enableTtl(ctx, client, conf.SnapshotTableName)
}

// createTable provisions one table with (pkey, skey) as the primary key
// and a (aid, seq_nr) secondary index for id-scoped queries.
func createTable(ctx context.Context, client *ddb.Client, tableName string, aidIndexName string) error {
	_, err := client.CreateTable(ctx, &ddb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPkey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSkey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrAid), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSeqNr), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPkey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSkey), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(aidIndexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(attrAid), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(attrSeqNr), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		var exists *types.ResourceInUseException
		if errors.As(err, &exists) {
			log.Info().Str("table", tableName).Msg("Table already exists, skipping")
			return nil
		}
		return err
	}
	log.Info().Str("table", tableName).Msg("Created table, waiting for it to become active")
	waiter := ddb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &ddb.DescribeTableInput{TableName: aws.String(tableName)}, tableWaitTimeout)
}

func enableTtl(ctx context.Context, client *ddb.Client, tableName string) error {
	_, err := client.UpdateTimeToLive(ctx, &ddb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(attrTtl),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		// Rerunning setup against a table that already has TTL enabled is
		// reported as a validation error by the service.
		log.Warn().Err(err).Str("table", tableName).Msg("Could not enable TTL, it may already be enabled")
		return nil
	}
	log.Info().Str("table", tableName).Msg("Enabled TTL")
	return nil
}
