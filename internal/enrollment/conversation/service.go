package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "enrollment-chat/internal/common/errors"
	"enrollment-chat/internal/common/logger"
	"enrollment-chat/internal/common/metrics"
	"enrollment-chat/internal/common/observability"
	"enrollment-chat/internal/enrollment/dataset"
	"enrollment-chat/internal/enrollment/dialog"
	"enrollment-chat/internal/enrollment/query"
	"enrollment-chat/internal/enrollment/schema"
)

// Extractor is the external text-understanding collaborator.
type Extractor interface {
	Extract(ctx context.Context, message string, askingFor schema.AskingFor) (schema.ExtractedParams, error)
}

// Generator is the external text-generation collaborator.
type Generator interface {
	CollectionReply(ctx context.Context, state schema.ConversationState, message string, isFirstTurn bool) (string, error)
	DataReply(ctx context.Context, state schema.ConversationState, results query.Response) (string, error)
	Suggestions(ctx context.Context, state schema.ConversationState) ([]string, error)
}

// DatasetProvider hands out immutable dataset snapshots.
type DatasetProvider interface {
	GetOrReload(ctx context.Context) (*dataset.Dataset, error)
}

// TurnResult is the outcome of one conversational turn.
type TurnResult struct {
	ConversationID       string   `json:"conversationId"`
	Reply                string   `json:"response"`
	Confirmed            bool     `json:"confirmed"`
	AwaitingConfirmation bool     `json:"awaitingConfirmation"`
	SuggestedQueries     []string `json:"suggestedQueries,omitempty"`
}

// StateSnapshot is the diagnostic view of a conversation.
type StateSnapshot struct {
	ConversationID string                   `json:"conversationId"`
	State          schema.ConversationState `json:"state"`
	AskingFor      schema.AskingFor         `json:"askingFor"`
	Missing        []schema.AskingFor       `json:"missing"`
	IsComplete     bool                     `json:"isComplete"`
}

// Service drives the slot-filling dialogue. Turns for the same conversation
// are serialized; turns for different conversations run concurrently. State
// mutation is atomic per turn: the full new state is computed, the query (if
// any) executed, and only then is the state published to the store.
type Service struct {
	domain    *schema.ValueDomain
	extractor Extractor
	generator Generator
	datasets  DatasetProvider
	store     Store
	locks     *keyedLocks
	logger    logger.Logger
	obs       *observability.Observability
	newID     func() string
}

func NewService(
	domain *schema.ValueDomain,
	extractor Extractor,
	generator Generator,
	datasets DatasetProvider,
	store Store,
	log logger.Logger,
	obs *observability.Observability,
) *Service {
	return &Service{
		domain:    domain,
		extractor: extractor,
		generator: generator,
		datasets:  datasets,
		store:     store,
		locks:     newKeyedLocks(),
		logger:    log.With(map[string]interface{}{"component": "conversation-service"}),
		obs:       obs,
		newID:     uuid.NewString,
	}
}

// HandleTurn processes one user message for a conversation, allocating a new
// conversation id when none is given.
func (s *Service) HandleTurn(ctx context.Context, conversationID, message string) (*TurnResult, error) {
	start := time.Now()

	if conversationID == "" {
		conversationID = s.newID()
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	result, err := s.processTurn(ctx, conversationID, message)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.TurnsProcessed.WithLabelValues(status).Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	if s.obs != nil {
		s.obs.RecordTurnProcessed(ctx, status)
		s.obs.RecordTurnDuration(ctx, time.Since(start), status)
	}

	return result, err
}

func (s *Service) processTurn(ctx context.Context, conversationID, message string) (*TurnResult, error) {
	log := s.logger.With(map[string]interface{}{"conversationId": conversationID})

	stored, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, apperrors.NewStateStoreFailedError(err)
	}

	isFirstTurn := stored == nil
	if isFirstTurn {
		stored = &StoredState{}
		log.Info("new conversation started", nil)
	}
	state := stored.State
	askingFor := stored.AskingFor

	// A failing extraction collaborator never corrupts state: substitute an
	// all-absent parameter set and let the dialogue re-ask.
	extracted, err := s.extractor.Extract(ctx, message, askingFor)
	if err != nil {
		log.Warn("extraction failed, continuing with empty params", map[string]interface{}{
			"error": err.Error(),
		})
		extracted = schema.ExtractedParams{}
	}
	extracted = schema.Sanitize(s.domain, extracted, func(field, value string) {
		metrics.InvalidDomainValues.WithLabelValues(field).Inc()
		log.Debug("discarded out-of-domain value", map[string]interface{}{
			"field": field,
			"value": value,
		})
	})

	newState, nextAsk := dialog.Resolve(state, extracted, askingFor)

	// A change request that matched no clearable slot leaves a complete state
	// re-awaiting confirmation; ask which field to change instead of looping
	// straight back to the same confirmation prompt.
	askWhatToChange := extracted.WantsToChange != "" && !newState.Confirmed &&
		newState.IsComplete() && sameSlots(state, newState)
	if askWhatToChange {
		nextAsk = schema.AskWhatToChange
	}

	var queryResp *query.Response
	if newState.Confirmed {
		ds, err := s.datasets.GetOrReload(ctx)
		if err != nil {
			// Leave stored state untouched so the turn can be retried.
			log.Error("dataset unavailable for confirmed query", map[string]interface{}{
				"error": err.Error(),
			})
			return nil, err
		}

		terms := append([]string(nil), newState.Terms...)
		s.domain.SortTerms(terms)
		resp := query.Execute(s.domain, query.Params{
			Terms:    terms,
			Level:    newState.Level,
			Mode:     newState.Mode,
			Metric:   newState.Metric,
			Variable: newState.Variable,
		}, ds)
		queryResp = &resp

		outcome := "rows"
		if len(resp.Results) == 0 {
			outcome = "empty"
		}
		metrics.QueriesExecuted.WithLabelValues(outcome).Inc()
		log.Info("executed enrollment query", map[string]interface{}{
			"summary": resp.QuerySummary,
			"rows":    len(resp.Results),
		})
	}

	if err := s.store.Put(ctx, conversationID, &StoredState{State: newState, AskingFor: nextAsk}); err != nil {
		return nil, apperrors.NewStateStoreFailedError(err)
	}

	result := &TurnResult{
		ConversationID:       conversationID,
		Confirmed:            newState.Confirmed,
		AwaitingConfirmation: newState.AwaitingConfirmation,
	}
	result.Reply = s.buildReply(ctx, log, newState, nextAsk, message, isFirstTurn, askWhatToChange, queryResp)

	if newState.Confirmed {
		if suggestions, err := s.generator.Suggestions(ctx, newState); err != nil {
			log.Warn("suggestion generation failed", map[string]interface{}{"error": err.Error()})
		} else {
			result.SuggestedQueries = suggestions
		}
	}

	return result, nil
}

// buildReply produces the user-visible reply. Confirmation prompts and the
// what-to-change question are deterministic templates; everything else goes
// through the generation collaborator with a template fallback so a turn
// never fails on wording.
func (s *Service) buildReply(
	ctx context.Context,
	log logger.Logger,
	state schema.ConversationState,
	nextAsk schema.AskingFor,
	message string,
	isFirstTurn bool,
	askWhatToChange bool,
	queryResp *query.Response,
) string {
	if state.Confirmed && queryResp != nil {
		if len(queryResp.Results) == 0 {
			return "I couldn't find any enrollment data matching your query. " +
				"Please try different parameters or start a new conversation."
		}
		reply, err := s.generator.DataReply(ctx, state, *queryResp)
		if err != nil {
			log.Warn("data reply generation failed, using fallback", map[string]interface{}{
				"error": err.Error(),
			})
			return fallbackDataReply(*queryResp)
		}
		return reply
	}

	if askWhatToChange {
		return "Which field would you like to change? (Term, Level, Mode, or Focus)"
	}

	if nextAsk == schema.AskConfirmation {
		return fmt.Sprintf("I'll search for:\n\n%s\n\n**Does this look correct?**", state.Summary())
	}

	reply, err := s.generator.CollectionReply(ctx, state, message, isFirstTurn)
	if err != nil {
		log.Warn("collection reply generation failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallbackCollectionReply(nextAsk)
	}
	return reply
}

var slotPrompts = map[schema.AskingFor]string{
	schema.AskTerm:  "Which semester(s)? Available data: Fall 2012 - Fall 2025 (you can specify multiple).",
	schema.AskLevel: "Undergraduate, Graduate, or All?",
	schema.AskMode:  "Campus Immersion, Digital Immersion, or All?",
}

func fallbackCollectionReply(nextAsk schema.AskingFor) string {
	if prompt, ok := slotPrompts[nextAsk]; ok {
		return prompt
	}
	return "Could you tell me more about the enrollment data you're looking for?"
}

func fallbackDataReply(resp query.Response) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(resp.QuerySummary)
	b.WriteString("\n")
	for _, r := range resp.Results {
		if r.Variable != "" {
			fmt.Fprintf(&b, "- **%s**: %d students (%s)\n", r.Term, r.StudentCount, r.Variable)
		} else {
			fmt.Fprintf(&b, "- **%s**: %d students\n", r.Term, r.StudentCount)
		}
	}
	if resp.TotalAcrossTerms != nil {
		fmt.Fprintf(&b, "- **Total**: %d students across all terms\n", *resp.TotalAcrossTerms)
	}
	return strings.TrimRight(b.String(), "\n")
}

// sameSlots reports whether the two states hold identical slot values,
// ignoring progress flags.
func sameSlots(a, b schema.ConversationState) bool {
	if len(a.Terms) != len(b.Terms) {
		return false
	}
	for i := range a.Terms {
		if a.Terms[i] != b.Terms[i] {
			return false
		}
	}
	return a.Level == b.Level && a.Mode == b.Mode && a.Metric == b.Metric && a.Variable == b.Variable
}

// State returns a snapshot of a conversation, with terms chronologically
// sorted for output.
func (s *Service) State(ctx context.Context, conversationID string) (*StateSnapshot, error) {
	stored, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, apperrors.NewStateStoreFailedError(err)
	}
	if stored == nil {
		return nil, apperrors.NewConversationNotFoundError(conversationID)
	}

	state := stored.State.Clone()
	s.domain.SortTerms(state.Terms)

	return &StateSnapshot{
		ConversationID: conversationID,
		State:          state,
		AskingFor:      stored.AskingFor,
		Missing:        state.MissingRequired(),
		IsComplete:     state.IsComplete(),
	}, nil
}

// Clear removes a conversation's state, reporting whether it existed.
func (s *Service) Clear(ctx context.Context, conversationID string) (bool, error) {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	existed, err := s.store.Delete(ctx, conversationID)
	if err != nil {
		return false, apperrors.NewStateStoreFailedError(err)
	}
	if existed {
		s.logger.Info("conversation cleared", map[string]interface{}{
			"conversationId": conversationID,
		})
	}
	return existed, nil
}
