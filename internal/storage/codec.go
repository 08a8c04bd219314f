package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"gpbreed/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the current schema and codec versions.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeCountTable(t model.CountTableRecord) ([]byte, error) {
	return json.Marshal(t)
}

func DecodeCountTable(data []byte) (model.CountTableRecord, error) {
	var table model.CountTableRecord
	if err := json.Unmarshal(data, &table); err != nil {
		return model.CountTableRecord{}, err
	}
	if err := checkVersion(table.VersionedRecord); err != nil {
		return model.CountTableRecord{}, err
	}
	return table, nil
}

func EncodePopulation(p model.PopulationRecord) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.PopulationRecord, error) {
	var population model.PopulationRecord
	if err := json.Unmarshal(data, &population); err != nil {
		return model.PopulationRecord{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.PopulationRecord{}, err
	}
	return population, nil
}

func EncodeGenerationStats(stats []model.GenerationStats) ([]byte, error) {
	return json.Marshal(stats)
}

func DecodeGenerationStats(data []byte) ([]model.GenerationStats, error) {
	var stats []model.GenerationStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
