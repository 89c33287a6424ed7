package models

// Sequence is a named persisted counter used for human-readable transaction ids.
type Sequence struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"sequence_value"`
}
