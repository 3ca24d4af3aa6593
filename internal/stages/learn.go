package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ebarroso/promptforge/internal/lessons"
	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/vector"
)

// LearnOutput is the learning stage's contribution.
type LearnOutput struct {
	Recorded  int     `json:"recorded"`
	LessonIDs []int64 `json:"lesson_ids,omitempty"`
}

// LearnStage distills the run into lessons: failures, retries, and
// validation problems become searchable records, and each lesson is
// also indexed so vector search in later runs can surface it. Store
// failures degrade — learning must never break the run it learns from.
type LearnStage struct {
	store *lessons.Store
	index *vector.Index
}

// NewLearnStage creates the stage. The index may be nil to skip
// lesson indexing.
func NewLearnStage(store *lessons.Store, index *vector.Index) *LearnStage {
	return &LearnStage{store: store, index: index}
}

func (s *LearnStage) Name() string { return NameLearn }

func (s *LearnStage) Cost() pipeline.Cost { return pipeline.Cost{Chunks: 1} }

func (s *LearnStage) CanRetry(err error) bool { return pipeline.Transient(err) }

func (s *LearnStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	drafts := s.distill(pc)

	out := LearnOutput{}
	var warnings []string
	var degraded []pipeline.StageError

	for _, l := range drafts {
		id, err := s.store.Record(l)
		if err != nil {
			degraded = append(degraded, pipeline.StageError{
				Stage:     NameLearn,
				Err:       fmt.Sprintf("recording lesson %q: %v", l.Title, err),
				Timestamp: time.Now(),
			})
			continue
		}
		out.Recorded++
		out.LessonIDs = append(out.LessonIDs, id)

		if s.index != nil {
			doc := vector.Document{
				ID:   fmt.Sprintf("lesson-%d", id),
				Kind: "lesson",
				Text: l.Title + "\n" + l.Content,
			}
			if err := s.index.Add(doc); err != nil {
				warnings = append(warnings, fmt.Sprintf("lesson %d not indexed: %v", id, err))
			}
		}
	}

	if len(degraded) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d lesson(s) could not be recorded", len(degraded)))
	}

	d := delta(NameLearn, out)
	d.Warnings = warnings
	d.Errors = degraded
	d.Metadata = map[string]any{"recorded": out.Recorded}
	return d, nil
}

// distill derives lesson drafts from the run. For the learn tool the
// request text itself is the lesson.
func (s *LearnStage) distill(pc *pipeline.Context) []lessons.Lesson {
	var out []lessons.Lesson

	if pc.Tool == pipeline.ToolLearn {
		prompt := strings.TrimSpace(pc.Request.Prompt)
		if prompt == "" {
			return nil
		}
		title := prompt
		if i := strings.IndexByte(title, '\n'); i > 0 {
			title = title[:i]
		}
		title = truncateTitle(title, 120)
		return []lessons.Lesson{{
			RequestID: pc.RequestID,
			Tool:      pc.Tool,
			Category:  "insight",
			Title:     title,
			Content:   prompt,
		}}
	}

	// One lesson per failed stage; retried stages that eventually
	// succeeded get a retry lesson from their attempt metadata. Stage
	// names are sorted so identical runs record identical lessons in
	// identical order.
	failed := make(map[string]int)
	for _, e := range pc.Errors {
		failed[e.Stage]++
	}
	for _, stage := range sortedKeys(failed) {
		out = append(out, lessons.Lesson{
			RequestID: pc.RequestID,
			Tool:      pc.Tool,
			Category:  "failure",
			Title:     fmt.Sprintf("stage %s failed during %s run", stage, pc.Tool),
			Content:   fmt.Sprintf("%d error(s) recorded for stage %s; prompt: %s", failed[stage], stage, pc.Request.Prompt),
		})
	}
	for _, stage := range sortedKeys(pc.Metadata) {
		if attempts, ok := pc.Metadata[stage]["attempts"]; ok {
			out = append(out, lessons.Lesson{
				RequestID: pc.RequestID,
				Tool:      pc.Tool,
				Category:  "retry",
				Title:     fmt.Sprintf("stage %s needed %v attempts", stage, attempts),
				Content:   fmt.Sprintf("narrowed retry succeeded for stage %s", stage),
			})
		}
	}
	if report, ok := output[ValidationReport](pc, NameValidate); ok && len(report.Problems) > 0 {
		out = append(out, lessons.Lesson{
			RequestID: pc.RequestID,
			Tool:      pc.Tool,
			Category:  "edit",
			Title:     "validation problems in " + pc.Tool + " run",
			Content:   strings.Join(report.Problems, "; "),
		})
	}
	return out
}

// truncateTitle caps a title at limit bytes without splitting a rune.
func truncateTitle(title string, limit int) string {
	if len(title) <= limit {
		return title
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
