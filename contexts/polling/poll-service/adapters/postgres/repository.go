package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pollhub/contexts/polling/poll-service/domain/entities"
	domainerrors "pollhub/contexts/polling/poll-service/domain/errors"
	"pollhub/contexts/polling/poll-service/ports"
	"pollhub/internal/shared/events"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreatePoll(ctx context.Context, poll entities.Poll) error {
	row := pollModelFromEntity(poll)
	options := optionModelsFromEntities(poll.Options)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(options) == 0 {
			return nil
		}
		return tx.Create(&options).Error
	})
	if err != nil {
		return r.logError("poll_repo_create_poll_failed", err, "poll_id", poll.PollID)
	}
	return nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	var row pollModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(pollID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, r.logError("poll_repo_get_poll_failed", err, "poll_id", strings.TrimSpace(pollID))
	}

	options, err := r.loadOptions(ctx, row.ID)
	if err != nil {
		return entities.Poll{}, err
	}
	return row.toEntity(options), nil
}

func (r *Repository) GetOption(ctx context.Context, optionID string) (entities.Option, error) {
	var row optionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(optionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Option{}, domainerrors.ErrOptionNotFound
		}
		return entities.Option{}, r.logError("poll_repo_get_option_failed", err, "option_id", strings.TrimSpace(optionID))
	}
	return row.toEntity(), nil
}

func (r *Repository) ListPolls(ctx context.Context) ([]entities.Poll, error) {
	var rows []pollModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("poll_repo_list_polls_failed", err)
	}

	items := make([]entities.Poll, 0, len(rows))
	for _, row := range rows {
		options, err := r.loadOptions(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, row.toEntity(options))
	}
	return items, nil
}

func (r *Repository) ReplaceQuestionAndOptions(
	ctx context.Context,
	pollID string,
	question string,
	options []entities.Option,
	updatedAt time.Time,
) error {
	rows := optionModelsFromEntities(options)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&pollModel{}).
			Where("id = ?", strings.TrimSpace(pollID)).
			Updates(map[string]any{
				"question":   question,
				"updated_at": updatedAt.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrPollNotFound
		}
		// Re-checked inside the transaction so a vote committed after the
		// caller's pre-check cannot be orphaned by the option rewrite.
		var voteCount int64
		if err := tx.Model(&voteModel{}).
			Where("poll_id = ?", strings.TrimSpace(pollID)).
			Limit(1).
			Count(&voteCount).Error; err != nil {
			return err
		}
		if voteCount > 0 {
			return domainerrors.ErrPollHasVotes
		}
		if err := tx.Where("poll_id = ?", strings.TrimSpace(pollID)).
			Delete(&optionModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrPollNotFound) || errors.Is(err, domainerrors.ErrPollHasVotes) {
			return err
		}
		return r.logError("poll_repo_replace_options_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	return nil
}

// CloseIfOpen is a single guarded UPDATE, so concurrent closers and sweeper
// runs race on the database row and exactly one observes the transition.
func (r *Repository) CloseIfOpen(ctx context.Context, pollID string, closedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&pollModel{}).
		Where("id = ?", strings.TrimSpace(pollID)).
		Where("status = ?", string(entities.PollStatusOpen)).
		Updates(map[string]any{
			"status":     string(entities.PollStatusClosed),
			"updated_at": closedAt.UTC(),
		})
	if result.Error != nil {
		return false, r.logError("poll_repo_close_poll_failed", result.Error, "poll_id", strings.TrimSpace(pollID))
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// No row changed: either the poll is already closed or it does not exist.
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&pollModel{}).
		Where("id = ?", strings.TrimSpace(pollID)).
		Count(&count).Error; err != nil {
		return false, r.logError("poll_repo_close_poll_lookup_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	if count == 0 {
		return false, domainerrors.ErrPollNotFound
	}
	return false, nil
}

func (r *Repository) DeletePoll(ctx context.Context, pollID string) error {
	// Options and votes go with the poll via ON DELETE CASCADE.
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(pollID)).
		Delete(&pollModel{})
	if result.Error != nil {
		return r.logError("poll_repo_delete_poll_failed", result.Error, "poll_id", strings.TrimSpace(pollID))
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPollNotFound
	}
	return nil
}

func (r *Repository) FindExpiredOpen(ctx context.Context, now time.Time) ([]entities.Poll, error) {
	var rows []pollModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.PollStatusOpen)).
		Where("closes_at IS NOT NULL").
		Where("closes_at < ?", now.UTC()).
		Order("closes_at ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("poll_repo_find_expired_failed", err)
	}
	items := make([]entities.Poll, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity(nil))
	}
	return items, nil
}

// InsertVote relies on the UNIQUE (poll_id, user_id) index: the database
// arbitrates concurrent casts and the loser surfaces as ErrAlreadyVoted.
func (r *Repository) InsertVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyVoted
		}
		return r.logError("poll_repo_insert_vote_failed", err,
			"poll_id", vote.PollID,
			"user_id", vote.UserID,
		)
	}
	return nil
}

func (r *Repository) GetVoteByPollAndUser(ctx context.Context, pollID string, userID string) (entities.Vote, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("poll_repo_get_vote_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CountVotesByOption(ctx context.Context, pollID string) (map[string]int, error) {
	type countRow struct {
		OptionID string `gorm:"column:option_id"`
		Votes    int    `gorm:"column:votes"`
	}
	var rows []countRow
	err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Select("option_id, COUNT(*) AS votes").
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Group("option_id").
		Scan(&rows).
		Error
	if err != nil {
		return nil, r.logError("poll_repo_count_votes_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.OptionID] = row.Votes
	}
	return counts, nil
}

func (r *Repository) HasAnyVotes(ctx context.Context, pollID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Limit(1).
		Count(&count).
		Error
	if err != nil {
		return false, r.logError("poll_repo_has_votes_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	return count > 0, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope events.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("poll_repo_append_outbox_marshal_failed", err,
			"event_id", envelope.EventID,
			"event_type", envelope.EventType,
		)
	}
	row := outboxModel{
		OutboxID:  strings.TrimSpace(envelope.EventID),
		EventType: strings.TrimSpace(envelope.EventType),
		Payload:   payload,
		Status:    outboxStatusPending,
		CreatedAt: envelope.OccurredAtUTC.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("poll_repo_append_outbox_failed", create.Error, "outbox_id", row.OutboxID)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("poll_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:  row.OutboxID,
			EventType: row.EventType,
			Payload:   append([]byte(nil), row.Payload...),
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("poll_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrStorageUnavailable
	}
	return nil
}

func (r *Repository) loadOptions(ctx context.Context, pollID string) ([]entities.Option, error) {
	var rows []optionModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("poll_repo_load_options_failed", err, "poll_id", pollID)
	}
	options := make([]entities.Option, 0, len(rows))
	for _, row := range rows {
		options = append(options, row.toEntity())
	}
	return options, nil
}

// logError records the storage failure and collapses it into the transient
// error kind callers are allowed to retry on.
func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "polling/poll-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("poll repository operation failed", fields...)
	return domainerrors.ErrStorageUnavailable
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

type pollModel struct {
	ID        string     `gorm:"column:id;primaryKey"`
	Question  string     `gorm:"column:question"`
	Status    string     `gorm:"column:status"`
	ClosesAt  *time.Time `gorm:"column:closes_at"`
	CreatedBy string     `gorm:"column:created_by"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (pollModel) TableName() string {
	return "polls"
}

func pollModelFromEntity(poll entities.Poll) pollModel {
	row := pollModel{
		ID:        strings.TrimSpace(poll.PollID),
		Question:  poll.Question,
		Status:    string(poll.Status),
		CreatedBy: strings.TrimSpace(poll.CreatedBy),
		CreatedAt: poll.CreatedAt.UTC(),
		UpdatedAt: poll.UpdatedAt.UTC(),
	}
	if poll.ClosesAt != nil {
		closesAt := poll.ClosesAt.UTC()
		row.ClosesAt = &closesAt
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m pollModel) toEntity(options []entities.Option) entities.Poll {
	poll := entities.Poll{
		PollID:    m.ID,
		Question:  m.Question,
		Status:    entities.PollStatus(m.Status),
		CreatedBy: m.CreatedBy,
		Options:   options,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.ClosesAt != nil {
		closesAt := m.ClosesAt.UTC()
		poll.ClosesAt = &closesAt
	}
	return poll
}

type optionModel struct {
	ID       string `gorm:"column:id;primaryKey"`
	PollID   string `gorm:"column:poll_id"`
	Text     string `gorm:"column:text"`
	Position int    `gorm:"column:position"`
}

func (optionModel) TableName() string {
	return "poll_options"
}

func optionModelsFromEntities(options []entities.Option) []optionModel {
	rows := make([]optionModel, 0, len(options))
	for _, option := range options {
		rows = append(rows, optionModel{
			ID:       strings.TrimSpace(option.OptionID),
			PollID:   strings.TrimSpace(option.PollID),
			Text:     option.Text,
			Position: option.Position,
		})
	}
	return rows
}

func (m optionModel) toEntity() entities.Option {
	return entities.Option{
		OptionID: m.ID,
		PollID:   m.PollID,
		Text:     m.Text,
		Position: m.Position,
	}
}

type voteModel struct {
	ID       string    `gorm:"column:id;primaryKey"`
	PollID   string    `gorm:"column:poll_id"`
	OptionID string    `gorm:"column:option_id"`
	UserID   string    `gorm:"column:user_id"`
	CastAt   time.Time `gorm:"column:cast_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	row := voteModel{
		ID:       strings.TrimSpace(vote.VoteID),
		PollID:   strings.TrimSpace(vote.PollID),
		OptionID: strings.TrimSpace(vote.OptionID),
		UserID:   strings.TrimSpace(vote.UserID),
		CastAt:   vote.CastAt.UTC(),
	}
	if row.CastAt.IsZero() {
		row.CastAt = time.Now().UTC()
	}
	return row
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:   m.ID,
		PollID:   m.PollID,
		OptionID: m.OptionID,
		UserID:   m.UserID,
		CastAt:   m.CastAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID    string     `gorm:"column:outbox_id;primaryKey"`
	EventType   string     `gorm:"column:event_type"`
	Payload     []byte     `gorm:"column:payload"`
	Status      string     `gorm:"column:status"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "poll_outbox"
}
