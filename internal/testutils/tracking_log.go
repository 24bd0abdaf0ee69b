// Package testutils provides synthetic tracking-log generation for
// tests, demos, and load experiments. Generated logs mix the legacy
// and submission event schemas along with the malformed lines a real
// log collector produces.
package testutils

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"
)

// GeneratorOptions controls the shape of a synthetic tracking log.
type GeneratorOptions struct {
	// Courses is the number of distinct course ids.
	Courses int
	// ProblemsPerCourse is the number of problems per course.
	ProblemsPerCourse int
	// Students is the number of distinct usernames.
	Students int
	// Events is the number of problem-check events to emit.
	Events int
	// NoiseEvery inserts one non-qualifying line (browser event or
	// garbage) after every NoiseEvery events. Zero disables noise.
	NoiseEvery int
	// Seed makes generation reproducible.
	Seed int64
}

// DefaultGeneratorOptions returns a small but representative log
// shape.
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Courses:           3,
		ProblemsPerCourse: 5,
		Students:          50,
		Events:            1000,
		NoiseEvery:        25,
		Seed:              1,
	}
}

// answerPool holds plausible answers with their correctness.
var answerPool = []struct {
	value   string
	correct bool
}{
	{"3", true},
	{"4", false},
	{"5", false},
	{"choice_0", false},
	{"choice_1", true},
	{"choice_2", false},
}

// GenerateTrackingLog writes opts.Events problem-check events (plus
// configured noise lines) to w, one JSON object per line. It returns
// the number of lines written.
func GenerateTrackingLog(w io.Writer, opts GeneratorOptions) (int, error) {
	rng := rand.New(rand.NewSource(opts.Seed))
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	lines := 0
	emit := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
		lines++
		return nil
	}

	for i := 0; i < opts.Events; i++ {
		course := fmt.Sprintf("TestX/Course%d/2024_Spring", rng.Intn(opts.Courses))
		problem := rng.Intn(opts.ProblemsPerCourse)
		problemID := fmt.Sprintf("i4x://%s/problem/Problem_%d", course, problem)
		partID := fmt.Sprintf("i4x-TestX-Course-problem-Problem_%d_2_1", problem)
		username := fmt.Sprintf("student_%03d", rng.Intn(opts.Students))
		answer := answerPool[rng.Intn(len(answerPool))]
		eventTime := base.Add(time.Duration(i) * time.Second)

		event := problemCheckEvent(course, problemID, partID, username, eventTime, answer.value, answer.correct, rng.Intn(2) == 0)
		if err := emit(event); err != nil {
			return lines, err
		}

		if opts.NoiseEvery > 0 && (i+1)%opts.NoiseEvery == 0 {
			if rng.Intn(2) == 0 {
				noise := problemCheckEvent(course, problemID, partID, username, eventTime, answer.value, answer.correct, false)
				noise["event_source"] = "browser"
				if err := emit(noise); err != nil {
					return lines, err
				}
			} else {
				if _, err := io.WriteString(w, "not valid json but mentions problem_check\n"); err != nil {
					return lines, err
				}
				lines++
			}
		}
	}
	return lines, nil
}

// problemCheckEvent builds one server-side problem_check event. When
// withSubmission is true the event carries the modern submission
// schema alongside the legacy fields, as current LMS versions do.
func problemCheckEvent(courseID, problemID, partID, username string, at time.Time, answer string, correct bool, withSubmission bool) map[string]any {
	correctness := "incorrect"
	if correct {
		correctness = "correct"
	}

	payload := map[string]any{
		"problem_id":  problemID,
		"answers":     map[string]any{partID: answer},
		"correct_map": map[string]any{partID: map[string]any{"correctness": correctness}},
		"state":       map[string]any{"seed": 1},
		"grade":       0,
		"max_grade":   1,
		"success":     correctness,
	}
	if withSubmission {
		payload["submission"] = map[string]any{
			partID: map[string]any{
				"input_type":    "formulaequationinput",
				"question":      "Enter the number of fingers on a human hand",
				"response_type": "numericalresponse",
				"answer":        answer,
				"variant":       1,
				"correct":       correct,
			},
		}
	}

	return map[string]any{
		"username":     username,
		"event_source": "server",
		"event_type":   "problem_check",
		"time":         at.UTC().Format("2006-01-02T15:04:05.000000+00:00"),
		"context": map[string]any{
			"course_id": courseID,
			"org_id":    "TestX",
			"user_id":   7,
		},
		"event": payload,
		"page":  nil,
	}
}

// SampleMetadata returns a metadata source covering the generated
// part ids, as the JSON object the pipeline's metadata loader expects.
func SampleMetadata(problems int) ([]byte, error) {
	entries := make(map[string]any, problems)
	for i := 0; i < problems; i++ {
		partID := fmt.Sprintf("i4x-TestX-Course-problem-Problem_%d_2_1", i)
		entries[partID] = map[string]any{
			"question":             fmt.Sprintf("Question %d", i),
			"response_type":        "numericalresponse",
			"input_type":           "formulaequationinput",
			"problem_display_name": fmt.Sprintf("Problem %d", i),
		}
	}
	return json.MarshalIndent(entries, "", "  ")
}
