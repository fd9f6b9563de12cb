package common

import (
	"github.com/google/uuid"
)

// NewReportID generates a unique report ID with the "rpt_" prefix
func NewReportID() string {
	return "rpt_" + uuid.New().String()
}

// NewAnalysisID generates a unique analysis ID with the "ana_" prefix
func NewAnalysisID() string {
	return "ana_" + uuid.New().String()
}

// NewEmbeddingID generates a unique embedding ID with the "emb_" prefix
func NewEmbeddingID() string {
	return "emb_" + uuid.New().String()
}

// NewDeltaID generates a unique delta ID with the "dlt_" prefix
func NewDeltaID() string {
	return "dlt_" + uuid.New().String()
}

// NewBatchID generates a unique batch ID with the "bat_" prefix
func NewBatchID() string {
	return "bat_" + uuid.New().String()
}
