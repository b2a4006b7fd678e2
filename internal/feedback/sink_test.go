package feedback

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/voxprep/voxprep/internal/interview"
	"github.com/voxprep/voxprep/internal/store/postgres"
	embmock "github.com/voxprep/voxprep/pkg/provider/embeddings/mock"
)

type fakeSaver struct {
	rec postgres.SessionRecord
	res interview.Result
	err error

	calls int
}

func (f *fakeSaver) SaveResult(_ context.Context, rec postgres.SessionRecord, res interview.Result) (string, error) {
	f.calls++
	f.rec = rec
	f.res = res
	if f.err != nil {
		return "", f.err
	}
	return rec.ID, nil
}

type fakeIndexer struct {
	chunks []postgres.SkillChunk
	err    error
}

func (f *fakeIndexer) Index(_ context.Context, chunk postgres.SkillChunk) error {
	f.chunks = append(f.chunks, chunk)
	return f.err
}

type fakePublisher struct {
	jobs []Job
	err  error
}

func (f *fakePublisher) PublishJob(job Job) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

type fakeReporter struct {
	report *Report
	err    error
}

func (f *fakeReporter) Generate(context.Context, string, interview.Result) (*Report, error) {
	return f.report, f.err
}

func sinkResult(t *testing.T) interview.Result {
	t.Helper()
	set, err := interview.NewQuestionSet([]interview.Question{
		{Text: "Walk me through your infrastructure experience.", Category: interview.CategoryOther},
		{Text: "Design a message queue.", Category: interview.CategoryScenario},
	})
	if err != nil {
		t.Fatalf("NewQuestionSet: %v", err)
	}
	return interview.Result{
		Status:    interview.StatusCompleted,
		Questions: set,
		Answers: []interview.AnswerRecord{
			{QuestionIndex: 0, Transcript: "We ran everything on kubernetes with docker images.", TimeSpent: time.Minute},
			{QuestionIndex: 1, Skipped: true},
		},
		Elapsed: 3 * time.Minute,
	}
}

func TestNewSink_Validation(t *testing.T) {
	if _, err := NewSink(nil); err == nil {
		t.Error("expected error for nil saver")
	}
}

func TestConsume_Persists(t *testing.T) {
	saver := &fakeSaver{}
	sink, err := NewSink(saver)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	info := SessionInfo{CandidateID: "cand-1", Role: "SRE", ATSScore: 64, StartedAt: time.Now()}
	sink.HandoffFor(info)(sinkResult(t))

	if saver.calls != 1 {
		t.Fatalf("SaveResult calls = %d", saver.calls)
	}
	if saver.rec.ID == "" {
		t.Error("expected generated session ID")
	}
	if saver.rec.CandidateID != "cand-1" || saver.rec.Role != "SRE" || saver.rec.ATSScore != 64 {
		t.Errorf("record = %+v", saver.rec)
	}
	if len(saver.res.Answers) != 2 {
		t.Errorf("answers = %d", len(saver.res.Answers))
	}
}

func TestConsume_FanOut(t *testing.T) {
	saver := &fakeSaver{}
	pub := &fakePublisher{}
	report := &Report{Summary: "fine", OverallScore: 3}

	var gotReportID string
	sink, err := NewSink(saver,
		WithPublisher(pub),
		WithGenerator(&fakeReporter{report: report}),
		WithReportFunc(func(sessionID string, r *Report) {
			gotReportID = sessionID
			if r != report {
				t.Errorf("report callback got %+v", r)
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	sink.Consume(SessionInfo{Role: "SRE"}, sinkResult(t))

	if len(pub.jobs) != 1 {
		t.Fatalf("got %d jobs", len(pub.jobs))
	}
	job := pub.jobs[0]
	if job.SessionID != saver.rec.ID {
		t.Errorf("job session %q != saved session %q", job.SessionID, saver.rec.ID)
	}
	if job.Status != string(interview.StatusCompleted) || job.Answers != 2 {
		t.Errorf("job = %+v", job)
	}
	if job.Report != report {
		t.Error("report not attached to job")
	}
	if gotReportID != saver.rec.ID {
		t.Errorf("report callback session = %q", gotReportID)
	}
}

func TestConsume_SaveFailureDoesNotStopPublish(t *testing.T) {
	saver := &fakeSaver{err: errors.New("db down")}
	pub := &fakePublisher{}
	sink, _ := NewSink(saver, WithPublisher(pub))

	sink.Consume(SessionInfo{}, sinkResult(t))

	if len(pub.jobs) != 1 {
		t.Errorf("expected publish despite save failure, got %d jobs", len(pub.jobs))
	}
}

func TestConsume_GeneratorFailureStillPublishes(t *testing.T) {
	pub := &fakePublisher{}
	sink, _ := NewSink(&fakeSaver{},
		WithPublisher(pub),
		WithGenerator(&fakeReporter{err: errors.New("model unavailable")}),
	)

	sink.Consume(SessionInfo{}, sinkResult(t))

	if len(pub.jobs) != 1 {
		t.Fatalf("got %d jobs", len(pub.jobs))
	}
	if pub.jobs[0].Report != nil {
		t.Error("expected nil report on generator failure")
	}
}

func TestConsume_IndexesSkills(t *testing.T) {
	saver := &fakeSaver{}
	indexer := &fakeIndexer{}
	embedder := &embmock.Provider{EmbedResult: []float32{0.1, 0.2}}
	sink, _ := NewSink(saver, WithSkillIndexing(indexer, embedder))

	sink.Consume(SessionInfo{Skills: []string{"kubernetes", "docker", "rust"}}, sinkResult(t))

	// Only the answered question is embedded, once.
	if len(embedder.EmbedCalls) != 1 {
		t.Fatalf("got %d Embed calls", len(embedder.EmbedCalls))
	}
	// One chunk per mentioned skill; "rust" is not in the transcript.
	if len(indexer.chunks) != 2 {
		t.Fatalf("got %d chunks: %+v", len(indexer.chunks), indexer.chunks)
	}
	wantID := fmt.Sprintf("%s-0-kubernetes", saver.rec.ID)
	if indexer.chunks[0].ID != wantID {
		t.Errorf("chunk ID = %q, want %q", indexer.chunks[0].ID, wantID)
	}
	for _, c := range indexer.chunks {
		if c.SessionID != saver.rec.ID || c.QuestionIndex != 0 {
			t.Errorf("chunk = %+v", c)
		}
		if len(c.Embedding) != 2 {
			t.Errorf("embedding = %v", c.Embedding)
		}
	}
}

func TestConsume_EmbedFailureSkipsAnswer(t *testing.T) {
	indexer := &fakeIndexer{}
	embedder := &embmock.Provider{EmbedErr: errors.New("quota exceeded")}
	sink, _ := NewSink(&fakeSaver{}, WithSkillIndexing(indexer, embedder))

	sink.Consume(SessionInfo{Skills: []string{"kubernetes"}}, sinkResult(t))

	if len(indexer.chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(indexer.chunks))
	}
}
