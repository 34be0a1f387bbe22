package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "enrollment-chat/internal/common/errors"
	"enrollment-chat/internal/common/logger"
	"enrollment-chat/internal/enrollment/dataset"
	"enrollment-chat/internal/enrollment/query"
	"enrollment-chat/internal/enrollment/schema"
)

// ==========================
// Stub Collaborators
// ==========================

type stubExtractor struct {
	fn func(message string, askingFor schema.AskingFor) (schema.ExtractedParams, error)
}

func (s *stubExtractor) Extract(ctx context.Context, message string, askingFor schema.AskingFor) (schema.ExtractedParams, error) {
	return s.fn(message, askingFor)
}

type stubGenerator struct {
	collectionReply string
	collectionErr   error
	dataReply       string
	dataErr         error
	suggestions     []string
	suggestionsErr  error
}

func (s *stubGenerator) CollectionReply(ctx context.Context, state schema.ConversationState, message string, isFirstTurn bool) (string, error) {
	return s.collectionReply, s.collectionErr
}

func (s *stubGenerator) DataReply(ctx context.Context, state schema.ConversationState, results query.Response) (string, error) {
	return s.dataReply, s.dataErr
}

func (s *stubGenerator) Suggestions(ctx context.Context, state schema.ConversationState) ([]string, error) {
	return s.suggestions, s.suggestionsErr
}

type stubDatasets struct {
	ds  *dataset.Dataset
	err error
}

func (s *stubDatasets) GetOrReload(ctx context.Context) (*dataset.Dataset, error) {
	return s.ds, s.err
}

func serviceDataset() *dataset.Dataset {
	return dataset.New([]dataset.Row{
		{Term: "Fall 2021", Level: "Undergraduate", Mode: "Campus Immersion", Metric: "Campus", Variable: "All", Count: 28304, Description: "Total enrollment"},
		{Term: "Fall 2022", Level: "Undergraduate", Mode: "Campus Immersion", Metric: "Campus", Variable: "All", Count: 30445, Description: "Total enrollment"},
	}, time.Now())
}

// scriptedExtractor returns queued extractions in order, one per turn.
func scriptedExtractor(t *testing.T, script ...schema.ExtractedParams) *stubExtractor {
	t.Helper()
	i := 0
	return &stubExtractor{fn: func(message string, askingFor schema.AskingFor) (schema.ExtractedParams, error) {
		require.Less(t, i, len(script), "extractor called more times than scripted")
		out := script[i]
		i++
		return out, nil
	}}
}

func newTestService(t *testing.T, extractor Extractor, generator Generator, datasets DatasetProvider) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	svc := NewService(
		schema.NewValueDomain(),
		extractor,
		generator,
		datasets,
		store,
		logger.NewTestLogger(t),
		nil,
	)
	return svc, store
}

// ==========================
// Turn Pipeline Tests
// ==========================

func TestHandleTurn_FullFlow(t *testing.T) {
	extractor := scriptedExtractor(t,
		schema.ExtractedParams{Terms: []string{"Fall 2022", "Fall 2021"}, Level: "Undergraduate"},
		schema.ExtractedParams{Mode: "Campus Immersion"},
		schema.ExtractedParams{IsConfirmation: true},
	)
	generator := &stubGenerator{
		collectionReply: "Which mode would you like?",
		dataReply:       "Here is your enrollment data.",
		suggestions:     []string{"Compare with Fall 2023"},
	}
	svc, store := newTestService(t, extractor, generator, &stubDatasets{ds: serviceDataset()})
	ctx := context.Background()

	// Turn 1: new conversation, terms and level land, mode is asked next.
	r1, err := svc.HandleTurn(ctx, "", "fall 2021 and 2022 undergrad")
	require.NoError(t, err)
	assert.NotEmpty(t, r1.ConversationID)
	assert.False(t, r1.Confirmed)
	assert.False(t, r1.AwaitingConfirmation)
	assert.Equal(t, "Which mode would you like?", r1.Reply)

	stored, err := store.Get(ctx, r1.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, schema.AskMode, stored.AskingFor)

	// Turn 2: mode completes the state; the confirmation prompt is a
	// deterministic template over the collected summary.
	r2, err := svc.HandleTurn(ctx, r1.ConversationID, "on campus")
	require.NoError(t, err)
	assert.True(t, r2.AwaitingConfirmation)
	assert.Contains(t, r2.Reply, "I'll search for:")
	assert.Contains(t, r2.Reply, "**Does this look correct?**")
	assert.Contains(t, r2.Reply, "Fall 2022, Fall 2021")

	// Turn 3: confirmation executes the query and returns the data reply
	// plus suggestions.
	r3, err := svc.HandleTurn(ctx, r1.ConversationID, "yes")
	require.NoError(t, err)
	assert.True(t, r3.Confirmed)
	assert.False(t, r3.AwaitingConfirmation)
	assert.Equal(t, "Here is your enrollment data.", r3.Reply)
	assert.Equal(t, []string{"Compare with Fall 2023"}, r3.SuggestedQueries)

	stored, err = store.Get(ctx, r1.ConversationID)
	require.NoError(t, err)
	assert.True(t, stored.State.Confirmed)
	assert.Equal(t, schema.AskNothing, stored.AskingFor)
}

func TestHandleTurn_AllocatesConversationID(t *testing.T) {
	extractor := &stubExtractor{fn: func(string, schema.AskingFor) (schema.ExtractedParams, error) {
		return schema.ExtractedParams{}, nil
	}}
	svc, _ := newTestService(t, extractor, &stubGenerator{collectionReply: "hi"}, &stubDatasets{ds: serviceDataset()})

	r1, err := svc.HandleTurn(context.Background(), "", "hello")
	require.NoError(t, err)
	r2, err := svc.HandleTurn(context.Background(), "", "hello")
	require.NoError(t, err)

	assert.NotEmpty(t, r1.ConversationID)
	assert.NotEqual(t, r1.ConversationID, r2.ConversationID)
}

func TestHandleTurn_ExtractionFailureReasks(t *testing.T) {
	extractor := &stubExtractor{fn: func(string, schema.AskingFor) (schema.ExtractedParams, error) {
		return schema.ExtractedParams{}, errors.New("upstream down")
	}}
	generator := &stubGenerator{collectionReply: "Which semester are you interested in?"}
	svc, store := newTestService(t, extractor, generator, &stubDatasets{ds: serviceDataset()})

	r, err := svc.HandleTurn(context.Background(), "", "fall 2021")
	require.NoError(t, err)
	assert.Equal(t, "Which semester are you interested in?", r.Reply)

	// State persisted empty, still asking for the first slot.
	stored, err := store.Get(context.Background(), r.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, stored.State.Terms)
	assert.Equal(t, schema.AskTerm, stored.AskingFor)
}

func TestHandleTurn_OutOfDomainValuesDropped(t *testing.T) {
	extractor := &stubExtractor{fn: func(string, schema.AskingFor) (schema.ExtractedParams, error) {
		return schema.ExtractedParams{Terms: []string{"Fall 2030"}, Level: "PhD"}, nil
	}}
	svc, store := newTestService(t, extractor, &stubGenerator{collectionReply: "?"}, &stubDatasets{ds: serviceDataset()})

	r, err := svc.HandleTurn(context.Background(), "", "fall 2030 phd")
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), r.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, stored.State.Terms)
	assert.Empty(t, stored.State.Level)
}

func TestHandleTurn_DatasetUnavailableLeavesStateUntouched(t *testing.T) {
	extractor := scriptedExtractor(t,
		schema.ExtractedParams{Terms: []string{"Fall 2021"}, Level: "Undergraduate", Mode: "Campus Immersion"},
		schema.ExtractedParams{IsConfirmation: true},
		schema.ExtractedParams{IsConfirmation: true},
	)
	datasets := &stubDatasets{err: apperrors.NewDatasetUnavailableError(errors.New("db down"))}
	generator := &stubGenerator{dataReply: "data"}
	svc, store := newTestService(t, extractor, generator, datasets)
	ctx := context.Background()

	r1, err := svc.HandleTurn(ctx, "", "fall 2021 undergrad on campus")
	require.NoError(t, err)
	assert.True(t, r1.AwaitingConfirmation)

	// Confirming while the dataset is down fails the turn...
	_, err = svc.HandleTurn(ctx, r1.ConversationID, "yes")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatasetUnavailable))

	// ...but leaves the stored state awaiting confirmation so it can be retried.
	stored, err := store.Get(ctx, r1.ConversationID)
	require.NoError(t, err)
	assert.False(t, stored.State.Confirmed)
	assert.True(t, stored.State.AwaitingConfirmation)

	// Retry once the dataset is back.
	datasets.err = nil
	datasets.ds = serviceDataset()
	r3, err := svc.HandleTurn(ctx, r1.ConversationID, "yes")
	require.NoError(t, err)
	assert.True(t, r3.Confirmed)
}

func TestHandleTurn_GenerationFailureFallsBack(t *testing.T) {
	extractor := scriptedExtractor(t,
		schema.ExtractedParams{Terms: []string{"Fall 2021"}},
	)
	generator := &stubGenerator{collectionErr: errors.New("genai down")}
	svc, _ := newTestService(t, extractor, generator, &stubDatasets{ds: serviceDataset()})

	r, err := svc.HandleTurn(context.Background(), "", "fall 2021")
	require.NoError(t, err)
	assert.Equal(t, "Undergraduate, Graduate, or All?", r.Reply)
}

func TestHandleTurn_DataReplyFailureFallsBack(t *testing.T) {
	extractor := scriptedExtractor(t,
		schema.ExtractedParams{Terms: []string{"Fall 2021", "Fall 2022"}, Level: "Undergraduate", Mode: "Campus Immersion"},
		schema.ExtractedParams{IsConfirmation: true},
	)
	generator := &stubGenerator{dataErr: errors.New("genai down")}
	svc, _ := newTestService(t, extractor, generator, &stubDatasets{ds: serviceDataset()})
	ctx := context.Background()

	r1, err := svc.HandleTurn(ctx, "", "fall 2021 and 2022 undergrad campus")
	require.NoError(t, err)

	r2, err := svc.HandleTurn(ctx, r1.ConversationID, "yes")
	require.NoError(t, err)
	assert.True(t, r2.Confirmed)
	assert.Contains(t, r2.Reply, "Query: Terms: Fall 2021, Fall 2022")
	assert.Contains(t, r2.Reply, "**Fall 2021**: 28304 students")
	assert.Contains(t, r2.Reply, "**Total**: 58749 students across all terms")
}

func TestHandleTurn_EmptyResultMessage(t *testing.T) {
	extractor := scriptedExtractor(t,
		// "All" never matches stored level values, so the query comes back empty.
		schema.ExtractedParams{Terms: []string{"Fall 2021"}, Level: "All", Mode: "All"},
		schema.ExtractedParams{IsConfirmation: true},
	)
	generator := &stubGenerator{dataReply: "should not be used"}
	svc, _ := newTestService(t, extractor, generator, &stubDatasets{ds: serviceDataset()})
	ctx := context.Background()

	r1, err := svc.HandleTurn(ctx, "", "all of fall 2021")
	require.NoError(t, err)

	r2, err := svc.HandleTurn(ctx, r1.ConversationID, "yes")
	require.NoError(t, err)
	assert.Contains(t, r2.Reply, "couldn't find any enrollment data")
}

func TestHandleTurn_UnmatchedChangeAsksWhatToChange(t *testing.T) {
	extractor := scriptedExtractor(t,
		schema.ExtractedParams{Terms: []string{"Fall 2021"}, Level: "Undergraduate", Mode: "Campus Immersion"},
		schema.ExtractedParams{WantsToChange: "yes"},
		schema.ExtractedParams{WantsToChange: "level"},
	)
	generator := &stubGenerator{collectionReply: "collected"}
	svc, store := newTestService(t, extractor, generator, &stubDatasets{ds: serviceDataset()})
	ctx := context.Background()

	r1, err := svc.HandleTurn(ctx, "", "fall 2021 undergrad campus")
	require.NoError(t, err)
	assert.True(t, r1.AwaitingConfirmation)

	// A rejection with no target keeps the slots and asks which to change.
	r2, err := svc.HandleTurn(ctx, r1.ConversationID, "no")
	require.NoError(t, err)
	assert.Equal(t, "Which field would you like to change? (Term, Level, Mode, or Focus)", r2.Reply)

	stored, err := store.Get(ctx, r1.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, schema.AskWhatToChange, stored.AskingFor)
	assert.Equal(t, "Undergraduate", stored.State.Level)

	// Naming the field clears it and reopens collection.
	r3, err := svc.HandleTurn(ctx, r1.ConversationID, "the level")
	require.NoError(t, err)
	assert.False(t, r3.AwaitingConfirmation)

	stored, err = store.Get(ctx, r1.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, stored.State.Level)
	assert.Equal(t, schema.AskLevel, stored.AskingFor)
}

func TestHandleTurn_SuggestionFailureIsNotFatal(t *testing.T) {
	extractor := scriptedExtractor(t,
		schema.ExtractedParams{Terms: []string{"Fall 2021"}, Level: "Undergraduate", Mode: "Campus Immersion"},
		schema.ExtractedParams{IsConfirmation: true},
	)
	generator := &stubGenerator{dataReply: "data", suggestionsErr: errors.New("genai down")}
	svc, _ := newTestService(t, extractor, generator, &stubDatasets{ds: serviceDataset()})
	ctx := context.Background()

	r1, err := svc.HandleTurn(ctx, "", "fall 2021 undergrad campus")
	require.NoError(t, err)

	r2, err := svc.HandleTurn(ctx, r1.ConversationID, "yes")
	require.NoError(t, err)
	assert.True(t, r2.Confirmed)
	assert.Empty(t, r2.SuggestedQueries)
}

// ==========================
// State / Clear Tests
// ==========================

func TestState_SortsTermsChronologically(t *testing.T) {
	extractor := scriptedExtractor(t,
		schema.ExtractedParams{Terms: []string{"Fall 2024", "Fall 2015", "Fall 2021"}},
	)
	svc, _ := newTestService(t, extractor, &stubGenerator{collectionReply: "?"}, &stubDatasets{ds: serviceDataset()})
	ctx := context.Background()

	r, err := svc.HandleTurn(ctx, "", "a few falls")
	require.NoError(t, err)

	snapshot, err := svc.State(ctx, r.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fall 2015", "Fall 2021", "Fall 2024"}, snapshot.State.Terms)
	assert.Equal(t, schema.AskLevel, snapshot.AskingFor)
	assert.Equal(t, []schema.AskingFor{schema.AskLevel, schema.AskMode}, snapshot.Missing)
	assert.False(t, snapshot.IsComplete)
}

func TestState_UnknownConversation(t *testing.T) {
	svc, _ := newTestService(t, &stubExtractor{}, &stubGenerator{}, &stubDatasets{})

	_, err := svc.State(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConversationNotFound))
}

func TestClear(t *testing.T) {
	extractor := scriptedExtractor(t, schema.ExtractedParams{Terms: []string{"Fall 2021"}})
	svc, _ := newTestService(t, extractor, &stubGenerator{collectionReply: "?"}, &stubDatasets{ds: serviceDataset()})
	ctx := context.Background()

	r, err := svc.HandleTurn(ctx, "", "fall 2021")
	require.NoError(t, err)

	existed, err := svc.Clear(ctx, r.ConversationID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = svc.Clear(ctx, r.ConversationID)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = svc.State(ctx, r.ConversationID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConversationNotFound))
}

// ==========================
// Concurrency Tests
// ==========================

func TestHandleTurn_SerializesPerConversation(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	extractor := &stubExtractor{fn: func(string, schema.AskingFor) (schema.ExtractedParams, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return schema.ExtractedParams{}, nil
	}}
	svc, _ := newTestService(t, extractor, &stubGenerator{collectionReply: "?"}, &stubDatasets{ds: serviceDataset()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleTurn(context.Background(), "same-id", "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight)
}

func TestKeyedLocks_IndependentKeys(t *testing.T) {
	locks := newKeyedLocks()

	unlockA := locks.lock("a")
	// A different key must not block.
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on independent key blocked")
	}
	unlockA()

	// Entries are released once free.
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}
