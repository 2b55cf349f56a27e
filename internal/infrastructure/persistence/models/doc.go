// Package models contains the GORM models for the farm ledger tables. They
// stay separate from the domain types so the aggregator never sees ORM tags;
// the repository maps rows to farm entities on read.
package models
