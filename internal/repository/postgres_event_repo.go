package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/meetbot/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `id, user_email, title, date, time, meeting_link, status, claimed_at, created_at, updated_at`

func scanEvent(scan func(dest ...any) error) (*model.Event, error) {
	event := &model.Event{}
	var claimedAt sql.NullTime
	var status string

	err := scan(
		&event.ID, &event.UserEmail, &event.Title,
		&event.Date, &event.Time, &event.MeetingLink,
		&status, &claimedAt, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Status = model.EventStatus(status)
	if claimedAt.Valid {
		t := claimedAt.Time
		event.ClaimedAt = &t
	}
	return event, nil
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	)

	event, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	return event, nil
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, user_email, title, date, time, meeting_link, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.UserEmail, event.Title,
		event.Date, event.Time, event.MeetingLink,
		event.Status, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// ListScheduled はクレーム候補のイベントを取得する。
// 必須フィールド（date/time/meeting_link）が欠落したイベントは
// ここで除外され、以後のどのサイクルでも対象にならない。
func (r *PostgresEventRepo) ListScheduled(ctx context.Context) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE status = 'scheduled'
		   AND date <> '' AND time <> '' AND meeting_link <> ''
		 ORDER BY date ASC, time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("参加待ちイベントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("イベント行のスキャンに失敗しました: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント行の走査に失敗しました: %w", err)
	}
	return events, nil
}

// ClaimEvent はイベントを排他的にクレームする。
// statusがまだ'scheduled'の行だけを'joined'に遷移させる条件付きUPDATE。
// 並行して呼ばれてもちょうど1つの呼び出しだけが1行を更新できる。
func (r *PostgresEventRepo) ClaimEvent(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events
		 SET status = 'joined', claimed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'scheduled'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("イベントのクレームに失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("クレーム結果の取得に失敗しました: %w", err)
	}
	return affected == 1, nil
}

// ReleaseEvent はクレーム済みイベントをscheduledに戻す。
// すでに終端状態に達している場合は何もしない。
func (r *PostgresEventRepo) ReleaseEvent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events
		 SET status = 'scheduled', claimed_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'joined'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("イベントの解放に失敗しました: %w", err)
	}
	return nil
}

// SetEventStatus はイベントのステータスを冪等に設定する。
// 同じ値での再実行は行を変更するが結果は同一であり、安全。
// 終端状態（completed/failed）からの遷移はSQLレベルで拒否する。
// 掃除ジョブがfailedにした後に遅れて届くワーカーの報告で
// 終端状態が巻き戻ることを防ぐため。
// 行が存在しない場合、または終端状態から別の状態への変更が
// 拒否された場合はfalseを返す。
func (r *PostgresEventRepo) SetEventStatus(ctx context.Context, id string, status model.EventStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = $2, updated_at = now()
		 WHERE id = $1
		   AND (status NOT IN ('completed', 'failed') OR status = $2)`,
		id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("イベントステータスの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ステータス更新結果の取得に失敗しました: %w", err)
	}
	return affected == 1, nil
}

// ResetStaleClaims はクレームから長時間終端状態に達していない
// イベントをfailedに遷移させる。ワーカープロセスが途中で強制終了
// された場合の補償トランザクションに相当する。
func (r *PostgresEventRepo) ResetStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	interval := fmt.Sprintf("%d seconds", int64(olderThan.Seconds()))

	result, err := r.db.ExecContext(ctx,
		`UPDATE events
		 SET status = 'failed', updated_at = now()
		 WHERE status = 'joined'
		   AND claimed_at IS NOT NULL
		   AND claimed_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		return 0, fmt.Errorf("滞留クレームのリセットに失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("リセット件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}
