package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// columnKind is the adapter's own classification of a declared storage
// type (spec §4.1 leaves storage_type as an opaque adapter-specific
// string). It picks the Go scan destination and the canonical DDL
// fragment for every column whose value the engine treats as opaque
// (keys, aggregate values).
type columnKind int

const (
	kindText columnKind = iota
	kindInt8
	kindFloat8
	kindNumeric
	kindTimestamp
	kindBool
)

func classifyStorageType(storageType string) (columnKind, error) {
	t := strings.ToUpper(strings.TrimSpace(storageType))
	switch {
	case strings.HasPrefix(t, "NUMERIC"), strings.HasPrefix(t, "DECIMAL"):
		return kindNumeric, nil
	case t == "BIGINT", t == "INT8", t == "INTEGER", t == "INT", t == "INT4", t == "SMALLINT":
		return kindInt8, nil
	case t == "DOUBLE PRECISION", t == "FLOAT8", t == "REAL", t == "FLOAT4":
		return kindFloat8, nil
	case strings.HasPrefix(t, "TIMESTAMP"), t == "DATE":
		return kindTimestamp, nil
	case t == "BOOLEAN", t == "BOOL":
		return kindBool, nil
	case strings.HasPrefix(t, "TEXT"), strings.HasPrefix(t, "VARCHAR"), strings.HasPrefix(t, "CHAR"):
		return kindText, nil
	default:
		return 0, fmt.Errorf("unsupported storage type %q", storageType)
	}
}

// newScanDest returns a fresh pointer of the Go type used to Scan a
// column of the given kind.
func newScanDest(k columnKind) any {
	switch k {
	case kindNumeric:
		return new(decimal.Decimal)
	case kindInt8:
		return new(int64)
	case kindFloat8:
		return new(float64)
	case kindTimestamp:
		return new(time.Time)
	case kindBool:
		return new(bool)
	default:
		return new(string)
	}
}

// extractScanned dereferences a pointer produced by newScanDest into the
// type-erased value the engine stores on adapter.Bucket.
func extractScanned(dest any) any {
	switch d := dest.(type) {
	case *decimal.Decimal:
		return *d
	case *int64:
		return *d
	case *float64:
		return *d
	case *time.Time:
		return *d
	case *bool:
		return *d
	case *string:
		return *d
	default:
		return nil
	}
}
