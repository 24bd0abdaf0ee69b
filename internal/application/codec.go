package application

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/answerdist/internal/domain"
)

// The staged shuffle format carries one record per line: tab-separated
// key fields followed by the value tuple. Course and part identifiers
// cannot contain tabs by grammar, and the JSON encoder escapes control
// characters, so no further quoting is needed.

// EncodeAnswerPart renders one last-event reducer output record in the
// staged format: course, part id, timestamp, and answer data JSON.
func EncodeAnswerPart(rec domain.AnswerPartRecord) (string, error) {
	data, err := json.Marshal(rec.Answer)
	if err != nil {
		return "", fmt.Errorf("encode answer data: %w", err)
	}
	return strings.Join([]string{
		rec.Key.CourseID,
		rec.Key.PartID,
		domain.FormatTimestamp(rec.Timestamp),
		string(data),
	}, "\t"), nil
}

// DecodeAnswerPart parses one staged line back into a record.
func DecodeAnswerPart(line string) (domain.AnswerPartRecord, error) {
	fields := strings.SplitN(line, "\t", 4)
	if len(fields) != 4 {
		return domain.AnswerPartRecord{}, fmt.Errorf("staged record has %d fields, want 4", len(fields))
	}
	timestamp, err := domain.ParseEventTime(fields[2])
	if err != nil {
		return domain.AnswerPartRecord{}, fmt.Errorf("staged record timestamp: %w", err)
	}
	var answer domain.AnswerData
	if err := json.Unmarshal([]byte(fields[3]), &answer); err != nil {
		return domain.AnswerPartRecord{}, fmt.Errorf("staged record answer data: %w", err)
	}
	return domain.AnswerPartRecord{
		Key:       domain.AnswerKey{CourseID: fields[0], PartID: fields[1]},
		Timestamp: timestamp,
		Answer:    answer,
	}, nil
}
