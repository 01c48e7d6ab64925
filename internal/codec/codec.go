// Package codec splits tasks into the columns stored directly and the
// extended attributes packed into the extended_data JSON column.
//
// On write the extended group is always replaced as a whole: a patch that
// supplies only comments stores a payload holding only comments. Callers
// that want to keep other extended attributes must supply them too.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tgienger/taskdesk/internal/models"
)

var jsonNull = []byte("null")

// Decode merges a stored record's extended payload onto the task.
// Payload values take precedence over anything already set.
func Decode(rec models.TaskRecord) (models.Task, error) {
	task := models.Task{TaskCore: rec.TaskCore}

	payload := bytes.TrimSpace(rec.ExtendedData)
	if len(payload) == 0 || bytes.Equal(payload, jsonNull) {
		return task, nil
	}

	var ext models.Extended
	if err := json.Unmarshal(payload, &ext); err != nil {
		return models.Task{}, fmt.Errorf("decode extended_data: %w", err)
	}
	task.Extended = ext
	return task, nil
}

// DecodeAll decodes every record, preserving order. A record whose payload
// can't be decoded still yields its task with no extended fields; the
// returned error joins one error per such record.
func DecodeAll(recs []models.TaskRecord) ([]models.Task, error) {
	tasks := make([]models.Task, 0, len(recs))
	var errs []error
	for _, rec := range recs {
		t, err := Decode(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %d: %w", rec.ID, err))
			t = models.Task{TaskCore: rec.TaskCore}
		}
		tasks = append(tasks, t)
	}
	return tasks, errors.Join(errs...)
}

// Encode packs the present extended fields into one JSON object.
// It returns nil when no extended field is present.
func Encode(ext models.Extended) (json.RawMessage, error) {
	if ext.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(ext)
	if err != nil {
		return nil, fmt.Errorf("encode extended_data: %w", err)
	}
	return data, nil
}

// EncodePatch strips the extended fields out of p. The returned core patch
// goes to the task columns; a non-nil payload replaces extended_data.
func EncodePatch(p models.TaskPatch) (models.TaskCorePatch, json.RawMessage, error) {
	payload, err := Encode(p.Extended)
	if err != nil {
		return models.TaskCorePatch{}, nil, err
	}
	return p.TaskCorePatch, payload, nil
}

// EncodeNew splits a new task the same way as EncodePatch. The returned
// task carries no extended fields.
func EncodeNew(t models.NewTask) (models.NewTask, json.RawMessage, error) {
	payload, err := Encode(t.Extended)
	if err != nil {
		return models.NewTask{}, nil, err
	}
	t.Extended = models.Extended{}
	return t, payload, nil
}
