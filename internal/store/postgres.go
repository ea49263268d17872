package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/livesync"
	"github.com/sells-group/prospect-cli/internal/model"
)

// notifyChannel is the LISTEN/NOTIFY channel the migration's triggers emit on.
const notifyChannel = "prospect_changes"

// PostgresStore implements Store on pgxpool with a LISTEN/NOTIFY change feed.
type PostgresStore struct {
	pool    db.Pool
	pgxPool *pgxpool.Pool // nil when constructed with NewPostgresWithPool
	feed    *livesync.Broadcaster

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries prepared on each connection.
var preparedStatements = map[string]string{
	"fetch_plans": `SELECT id, agent_ref, suburb, start_date, end_date, door_knock_streets, phone_call_streets,
		target_connects, target_desktop_appraisals, target_face_to_face_appraisals
		FROM plans WHERE agent_ref = $1 ORDER BY start_date DESC, id`,
	"insert_activity": `INSERT INTO activities (id, agent_ref, activity_type, suburb, street_name, activity_date,
		knocks_made, calls_connected, calls_answered, desktop_appraisals, face_to_face_appraisals, tags, property_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
}

// NewPostgres creates a PostgresStore with a connection pool and starts the
// change-feed listener. Close releases both.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s := &PostgresStore{
		pool:    pool,
		pgxPool: pool,
		feed:    livesync.NewBroadcaster(),
	}
	s.startListener()
	return s, nil
}

// NewPostgresWithPool builds a store over an existing pool, without the
// notification listener. Used by tests (pgxmock) and one-shot commands.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, feed: livesync.NewBroadcaster()}
}

// Pool exposes the underlying pool for bulk COPY in the importer.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

// Changes returns the store's change feed.
func (s *PostgresStore) Changes() livesync.Feed { return s.feed }

// Close stops the listener, closes the feed, and releases the pool.
func (s *PostgresStore) Close() error {
	if s.listenCancel != nil {
		s.listenCancel()
		<-s.listenDone
	}
	s.feed.Close()
	if s.pgxPool != nil {
		s.pgxPool.Close()
	} else {
		s.pool.Close()
	}
	return nil
}

// startListener runs the LISTEN loop on a dedicated connection, publishing
// parsed notifications to the feed. Reconnects are rate-limited so a flapping
// database does not spin the loop.
func (s *PostgresStore) startListener() {
	ctx, cancel := context.WithCancel(context.Background())
	s.listenCancel = cancel
	s.listenDone = make(chan struct{})

	reconnect := rate.NewLimiter(rate.Every(2*time.Second), 1)

	go func() {
		defer close(s.listenDone)
		for {
			if err := reconnect.Wait(ctx); err != nil {
				return
			}
			if err := s.listenOnce(ctx); err != nil && ctx.Err() == nil {
				zap.L().Warn("postgres: change listener disconnected", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

func (s *PostgresStore) listenOnce(ctx context.Context) error {
	conn, err := s.pgxPool.Acquire(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: acquire listen conn")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return eris.Wrap(err, "postgres: listen")
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return eris.Wrap(err, "postgres: wait for notification")
		}
		var ev livesync.Event
		if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
			zap.L().Warn("postgres: malformed change notification",
				zap.String("payload", notification.Payload), zap.Error(err))
			continue
		}
		s.feed.Publish(ev)
	}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS plans (
	id                             TEXT PRIMARY KEY,
	agent_ref                      TEXT NOT NULL,
	suburb                         TEXT NOT NULL,
	start_date                     DATE,
	end_date                       DATE,
	door_knock_streets             JSONB NOT NULL DEFAULT '[]',
	phone_call_streets             JSONB NOT NULL DEFAULT '[]',
	target_connects                INT NOT NULL DEFAULT 0,
	target_desktop_appraisals      INT NOT NULL DEFAULT 0,
	target_face_to_face_appraisals INT NOT NULL DEFAULT 0,
	created_at                     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activities (
	id                      TEXT PRIMARY KEY,
	agent_ref               TEXT NOT NULL,
	activity_type           TEXT NOT NULL,
	suburb                  TEXT NOT NULL DEFAULT '',
	street_name             TEXT NOT NULL DEFAULT '',
	activity_date           DATE,
	knocks_made             INT NOT NULL DEFAULT 0,
	calls_connected         INT NOT NULL DEFAULT 0,
	calls_answered          INT NOT NULL DEFAULT 0,
	desktop_appraisals      INT NOT NULL DEFAULT 0,
	face_to_face_appraisals INT NOT NULL DEFAULT 0,
	tags                    JSONB NOT NULL DEFAULT '[]',
	property_ref            TEXT NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS properties (
	id              TEXT PRIMARY KEY,
	agency_name     TEXT NOT NULL DEFAULT '',
	agent_name      TEXT NOT NULL DEFAULT '',
	suburb          TEXT NOT NULL DEFAULT '',
	street_name     TEXT NOT NULL DEFAULT '',
	property_type   TEXT NOT NULL DEFAULT '',
	price           NUMERIC NOT NULL DEFAULT 0,
	sold_price      NUMERIC NOT NULL DEFAULT 0,
	commission_rate NUMERIC NOT NULL DEFAULT 0,
	contract_status TEXT NOT NULL DEFAULT 'listed',
	listed_date     DATE,
	sold_date       DATE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_plans_agent ON plans(agent_ref);
CREATE INDEX IF NOT EXISTS idx_activities_agent ON activities(agent_ref);
CREATE INDEX IF NOT EXISTS idx_activities_suburb ON activities(suburb);
CREATE INDEX IF NOT EXISTS idx_properties_agency ON properties(agency_name);
CREATE INDEX IF NOT EXISTS idx_properties_suburb ON properties(suburb);

CREATE OR REPLACE FUNCTION prospect_notify() RETURNS trigger AS $fn$
DECLARE
	rec jsonb;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec := to_jsonb(OLD);
	ELSE
		rec := to_jsonb(NEW);
	END IF;
	PERFORM pg_notify('prospect_changes', json_build_object(
		'table', TG_TABLE_NAME,
		'kind', lower(TG_OP),
		'agent_ref', COALESCE(rec->>'agent_ref', '')
	)::text);
	RETURN NULL;
END;
$fn$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS plans_notify ON plans;
CREATE TRIGGER plans_notify AFTER INSERT OR UPDATE OR DELETE ON plans
	FOR EACH ROW EXECUTE FUNCTION prospect_notify();
DROP TRIGGER IF EXISTS activities_notify ON activities;
CREATE TRIGGER activities_notify AFTER INSERT OR UPDATE OR DELETE ON activities
	FOR EACH ROW EXECUTE FUNCTION prospect_notify();
DROP TRIGGER IF EXISTS properties_notify ON properties;
CREATE TRIGGER properties_notify AFTER INSERT OR UPDATE OR DELETE ON properties
	FOR EACH ROW EXECUTE FUNCTION prospect_notify();
`

// Migrate applies the schema and notification triggers.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// FetchPlans returns all plans owned by an agent, newest window first.
func (s *PostgresStore) FetchPlans(ctx context.Context, agentRef string) ([]model.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_ref, suburb, start_date, end_date, door_knock_streets, phone_call_streets,
			target_connects, target_desktop_appraisals, target_face_to_face_appraisals
		 FROM plans WHERE agent_ref = $1 ORDER BY start_date DESC, id`,
		agentRef,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch plans")
	}
	defer rows.Close()

	var plans []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, eris.Wrap(rows.Err(), "postgres: fetch plans iterate")
}

func scanPlan(rows pgx.Rows) (model.Plan, error) {
	var (
		p          model.Plan
		start, end *time.Time
		dkJSON     []byte
		pcJSON     []byte
	)
	err := rows.Scan(&p.ID, &p.AgentRef, &p.Suburb, &start, &end, &dkJSON, &pcJSON,
		&p.TargetConnects, &p.TargetDesktopAppraisals, &p.TargetFaceToFaceAppraisals)
	if err != nil {
		return p, eris.Wrap(err, "postgres: scan plan")
	}
	if start != nil {
		p.StartDate = start.UTC()
	}
	if end != nil {
		p.EndDate = end.UTC()
	}

	// Street lists come back as whatever JSON the app wrote; decode leniently.
	var dkRaw, pcRaw []any
	if err := json.Unmarshal(dkJSON, &dkRaw); err != nil {
		return p, eris.Wrapf(err, "postgres: plan %s door-knock streets", p.ID)
	}
	if err := json.Unmarshal(pcJSON, &pcRaw); err != nil {
		return p, eris.Wrapf(err, "postgres: plan %s phone-call streets", p.ID)
	}
	p.DoorKnockStreets = model.DecodeDoorKnockStreets(dkRaw, p.ID)
	p.PhoneCallStreets = model.DecodePhoneCallStreets(pcRaw, p.ID)
	return p, nil
}

// FetchActivities returns an agent's activities, optionally narrowed to one
// raw suburb value. Suburb normalization happens in the aggregator, not in
// SQL, so inconsistent source spellings still reconcile.
func (s *PostgresStore) FetchActivities(ctx context.Context, agentRef, suburb string) ([]model.Activity, error) {
	query := `SELECT id, agent_ref, activity_type, suburb, street_name, activity_date,
		knocks_made, calls_connected, calls_answered, desktop_appraisals, face_to_face_appraisals, tags, property_ref
		FROM activities WHERE agent_ref = $1`
	args := []any{agentRef}
	if suburb != "" {
		query += ` AND suburb = $2`
		args = append(args, suburb)
	}
	query += ` ORDER BY activity_date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch activities")
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		var (
			a        model.Activity
			date     *time.Time
			tagsJSON []byte
		)
		err := rows.Scan(&a.ID, &a.AgentRef, &a.Type, &a.Suburb, &a.Street, &date,
			&a.KnocksMade, &a.CallsConnected, &a.CallsAnswered,
			&a.DesktopAppraisals, &a.FaceToFaceAppraisals, &tagsJSON, &a.PropertyRef)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		if date != nil {
			a.Date = date.UTC()
		}
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &a.Tags); err != nil {
				return nil, eris.Wrapf(err, "postgres: activity %s tags", a.ID)
			}
		}
		activities = append(activities, a)
	}
	return activities, eris.Wrap(rows.Err(), "postgres: fetch activities iterate")
}

// FetchProperties returns property rows matching the filter.
func (s *PostgresStore) FetchProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error) {
	query := `SELECT id, agency_name, agent_name, suburb, street_name, property_type,
		price, sold_price, commission_rate, contract_status, listed_date, sold_date
		FROM properties WHERE 1=1`
	var args []any
	if filter.Agency != "" {
		args = append(args, filter.Agency)
		query += ` AND agency_name = $1`
	}
	if filter.Suburb != "" {
		args = append(args, filter.Suburb)
		if len(args) == 1 {
			query += ` AND suburb = $1`
		} else {
			query += ` AND suburb = $2`
		}
	}
	query += ` ORDER BY listed_date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch properties")
	}
	defer rows.Close()

	var properties []model.Property
	for rows.Next() {
		var (
			p      model.Property
			listed *time.Time
			sold   *time.Time
		)
		err := rows.Scan(&p.ID, &p.AgencyName, &p.AgentName, &p.Suburb, &p.Street, &p.PropertyType,
			&p.Price, &p.SoldPrice, &p.CommissionRate, &p.ContractStatus, &listed, &sold)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan property")
		}
		if listed != nil {
			p.ListedDate = listed.UTC()
		}
		if sold != nil {
			utc := sold.UTC()
			p.SoldDate = &utc
		}
		properties = append(properties, p)
	}
	return properties, eris.Wrap(rows.Err(), "postgres: fetch properties iterate")
}

// SavePlan upserts a plan row. A missing ID gets a fresh UUID.
func (s *PostgresStore) SavePlan(ctx context.Context, plan model.Plan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	dkJSON, err := json.Marshal(plan.DoorKnockStreets)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal door-knock streets")
	}
	pcJSON, err := json.Marshal(plan.PhoneCallStreets)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phone-call streets")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO plans (id, agent_ref, suburb, start_date, end_date, door_knock_streets, phone_call_streets,
			target_connects, target_desktop_appraisals, target_face_to_face_appraisals, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
			agent_ref = EXCLUDED.agent_ref,
			suburb = EXCLUDED.suburb,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			door_knock_streets = EXCLUDED.door_knock_streets,
			phone_call_streets = EXCLUDED.phone_call_streets,
			target_connects = EXCLUDED.target_connects,
			target_desktop_appraisals = EXCLUDED.target_desktop_appraisals,
			target_face_to_face_appraisals = EXCLUDED.target_face_to_face_appraisals,
			updated_at = now()`,
		plan.ID, plan.AgentRef, plan.Suburb, nullTime(plan.StartDate), nullTime(plan.EndDate),
		dkJSON, pcJSON, plan.TargetConnects, plan.TargetDesktopAppraisals, plan.TargetFaceToFaceAppraisals,
	)
	return eris.Wrapf(err, "postgres: save plan %s", plan.ID)
}

// SaveActivity inserts an activity row. A missing ID gets a fresh UUID.
func (s *PostgresStore) SaveActivity(ctx context.Context, activity model.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	tagsJSON, err := json.Marshal(activity.Tags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tags")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO activities (id, agent_ref, activity_type, suburb, street_name, activity_date,
			knocks_made, calls_connected, calls_answered, desktop_appraisals, face_to_face_appraisals,
			tags, property_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())`,
		activity.ID, activity.AgentRef, string(activity.Type), activity.Suburb, activity.Street,
		nullTime(activity.Date), activity.KnocksMade, activity.CallsConnected, activity.CallsAnswered,
		activity.DesktopAppraisals, activity.FaceToFaceAppraisals, tagsJSON, activity.PropertyRef,
	)
	return eris.Wrapf(err, "postgres: save activity %s", activity.ID)
}

// SaveProperties bulk-inserts property rows via COPY.
func (s *PostgresStore) SaveProperties(ctx context.Context, properties []model.Property) (int64, error) {
	if len(properties) == 0 {
		return 0, nil
	}

	columns := []string{
		"id", "agency_name", "agent_name", "suburb", "street_name", "property_type",
		"price", "sold_price", "commission_rate", "contract_status", "listed_date", "sold_date",
	}
	rows := make([][]any, 0, len(properties))
	for _, p := range properties {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		var sold any
		if p.SoldDate != nil {
			sold = *p.SoldDate
		}
		rows = append(rows, []any{
			p.ID, p.AgencyName, p.AgentName, p.Suburb, p.Street, p.PropertyType,
			p.Price, p.SoldPrice, p.CommissionRate, string(p.ContractStatus),
			nullTime(p.ListedDate), sold,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "properties", columns, rows)
	return n, eris.Wrap(err, "postgres: save properties")
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
