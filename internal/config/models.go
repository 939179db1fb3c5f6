package config

import "time"

// TopLevel wraps the app config so that the config file can namespace
// everything under a single key, which plays better with env overrides.
type TopLevel struct {
	Dynavault App `json:"dynavault" mapstructure:"dynavault"`
}

type App struct {
	DynamoDb   DynamoDbClient `json:"dynamodb" mapstructure:"dynamodb"`
	EventStore EventStore     `json:"event_store" mapstructure:"event_store"`
	Logging    *Logging       `json:"logging,omitempty" mapstructure:"logging"`
}

type Logging struct {
	Json  *bool   `json:"json,omitempty" mapstructure:"json"`
	File  *string `json:"file,omitempty" mapstructure:"file"`
	Level *string `json:"level,omitempty" mapstructure:"level"`
}

type DynamoDbClient struct {
	Region      *string            `json:"region,omitempty" mapstructure:"region"`
	Endpoint    *string            `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Credentials *StaticCredentials `json:"credentials,omitempty" mapstructure:"credentials"`
}

type StaticCredentials struct {
	AccessKeyId     string `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" mapstructure:"secret_access_key"`
}

type EventStore struct {
	JournalTableName     string        `json:"journal_table_name" mapstructure:"journal_table_name"`
	JournalAidIndexName  string        `json:"journal_aid_index_name" mapstructure:"journal_aid_index_name"`
	SnapshotTableName    string        `json:"snapshot_table_name" mapstructure:"snapshot_table_name"`
	SnapshotAidIndexName string        `json:"snapshot_aid_index_name" mapstructure:"snapshot_aid_index_name"`
	ShardCount           uint64        `json:"shard_count" mapstructure:"shard_count"`
	KeepSnapshotCount    uint32        `json:"keep_snapshot_count" mapstructure:"keep_snapshot_count"`
	DeleteTtl            time.Duration `json:"delete_ttl" mapstructure:"delete_ttl"`
}
