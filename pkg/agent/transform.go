package agent

import (
	"context"

	"github.com/inlethq/inlet/pkg/record"
)

// Transform represents a record transformation applied between parsing and
// persistence. Transforms can filter (return nil, nil), modify, or enrich
// records. Returning an error drops the record and is logged; the pipeline
// continues with the next record.
//
// The pipeline owns the input record and releases it in every outcome, so
// a transform must never release the record it was handed. A transform that
// returns a new record instead of the input transfers ownership of the new
// record to the pipeline.
type Transform func(ctx context.Context, rec *record.Record) (*record.Record, error)

// Identity returns every record unchanged. It is the default transform.
func Identity(_ context.Context, rec *record.Record) (*record.Record, error) {
	return rec, nil
}

// FilterTransform creates a transform that drops records not matching the
// predicate.
//
// Example:
//
//	// Keep only error-level events
//	agent.WithTransform(agent.FilterTransform(func(r *record.Record) bool {
//	    level, ok := r.Data["level"].(string)
//	    return ok && level == "error"
//	}))
func FilterTransform(predicate func(*record.Record) bool) Transform {
	return func(_ context.Context, rec *record.Record) (*record.Record, error) {
		if predicate(rec) {
			return rec, nil
		}
		return nil, nil // Filtered out - returning nil drops the record
	}
}

// FieldMapperTransform creates a transform that renames fields according
// to the provided mapping. Unmapped fields are preserved.
//
// Example:
//
//	mapping := map[string]string{
//	    "user_id":    "userId",
//	    "created_at": "createdAt",
//	}
//	agent.WithTransform(agent.FieldMapperTransform(mapping))
func FieldMapperTransform(mapping map[string]string) Transform {
	return func(_ context.Context, rec *record.Record) (*record.Record, error) {
		if rec.Data == nil {
			return rec, nil
		}

		newData := record.GetMap()

		for oldField, newField := range mapping {
			if value, ok := rec.Data[oldField]; ok {
				newData[newField] = value
			}
		}

		for field, value := range rec.Data {
			if _, mapped := mapping[field]; !mapped {
				newData[field] = value
			}
		}

		record.PutMap(rec.Data)
		rec.Data = newData
		return rec, nil
	}
}

// Chain composes transforms into one, applied left to right. A nil result
// or an error from any stage short-circuits the chain. Records created by
// intermediate stages are released by the chain; the caller keeps ownership
// of the input record.
func Chain(transforms ...Transform) Transform {
	return func(ctx context.Context, rec *record.Record) (*record.Record, error) {
		current := rec
		for _, transform := range transforms {
			result, err := transform(ctx, current)
			if err != nil {
				if current != rec {
					current.Release()
				}
				return nil, err
			}
			if result == nil {
				if current != rec {
					current.Release()
				}
				return nil, nil
			}
			if result != current && current != rec {
				current.Release()
			}
			current = result
		}
		return current, nil
	}
}
