package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/livesync"
	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Change events fan
// out in-process from the store's own writes; single-binary mode has no
// external writers to listen for.
type SQLiteStore struct {
	db   *sql.DB
	feed *livesync.Broadcaster
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB, feed: livesync.NewBroadcaster()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS plans (
	id                             TEXT PRIMARY KEY,
	agent_ref                      TEXT NOT NULL,
	suburb                         TEXT NOT NULL,
	start_date                     TEXT,
	end_date                       TEXT,
	door_knock_streets             TEXT NOT NULL DEFAULT '[]',
	phone_call_streets             TEXT NOT NULL DEFAULT '[]',
	target_connects                INTEGER NOT NULL DEFAULT 0,
	target_desktop_appraisals      INTEGER NOT NULL DEFAULT 0,
	target_face_to_face_appraisals INTEGER NOT NULL DEFAULT 0,
	created_at                     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS activities (
	id                      TEXT PRIMARY KEY,
	agent_ref               TEXT NOT NULL,
	activity_type           TEXT NOT NULL,
	suburb                  TEXT NOT NULL DEFAULT '',
	street_name             TEXT NOT NULL DEFAULT '',
	activity_date           TEXT,
	knocks_made             INTEGER NOT NULL DEFAULT 0,
	calls_connected         INTEGER NOT NULL DEFAULT 0,
	calls_answered          INTEGER NOT NULL DEFAULT 0,
	desktop_appraisals      INTEGER NOT NULL DEFAULT 0,
	face_to_face_appraisals INTEGER NOT NULL DEFAULT 0,
	tags                    TEXT NOT NULL DEFAULT '[]',
	property_ref            TEXT NOT NULL DEFAULT '',
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS properties (
	id              TEXT PRIMARY KEY,
	agency_name     TEXT NOT NULL DEFAULT '',
	agent_name      TEXT NOT NULL DEFAULT '',
	suburb          TEXT NOT NULL DEFAULT '',
	street_name     TEXT NOT NULL DEFAULT '',
	property_type   TEXT NOT NULL DEFAULT '',
	price           REAL NOT NULL DEFAULT 0,
	sold_price      REAL NOT NULL DEFAULT 0,
	commission_rate REAL NOT NULL DEFAULT 0,
	contract_status TEXT NOT NULL DEFAULT 'listed',
	listed_date     TEXT,
	sold_date       TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_plans_agent ON plans(agent_ref);
CREATE INDEX IF NOT EXISTS idx_activities_agent ON activities(agent_ref);
CREATE INDEX IF NOT EXISTS idx_activities_suburb ON activities(suburb);
CREATE INDEX IF NOT EXISTS idx_properties_agency ON properties(agency_name);
CREATE INDEX IF NOT EXISTS idx_properties_suburb ON properties(suburb);
`

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Changes returns the store's change feed.
func (s *SQLiteStore) Changes() livesync.Feed { return s.feed }

// Close shuts the feed and the database.
func (s *SQLiteStore) Close() error {
	s.feed.Close()
	return s.db.Close()
}

// dateLayout is how dates are stored; compatible with model.AsTime parsing.
const dateLayout = "2006-01-02"

func formatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, ok := model.AsTime(s.String)
	if !ok {
		return time.Time{}
	}
	return t
}

// FetchPlans returns all plans owned by an agent, newest window first.
func (s *SQLiteStore) FetchPlans(ctx context.Context, agentRef string) ([]model.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_ref, suburb, start_date, end_date, door_knock_streets, phone_call_streets,
			target_connects, target_desktop_appraisals, target_face_to_face_appraisals
		 FROM plans WHERE agent_ref = ? ORDER BY start_date DESC, id`,
		agentRef,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch plans")
	}
	defer rows.Close()

	var plans []model.Plan
	for rows.Next() {
		var (
			p          model.Plan
			start, end sql.NullString
			dkJSON     string
			pcJSON     string
		)
		err := rows.Scan(&p.ID, &p.AgentRef, &p.Suburb, &start, &end, &dkJSON, &pcJSON,
			&p.TargetConnects, &p.TargetDesktopAppraisals, &p.TargetFaceToFaceAppraisals)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan plan")
		}
		p.StartDate = parseDate(start)
		p.EndDate = parseDate(end)

		var dkRaw, pcRaw []any
		if err := json.Unmarshal([]byte(dkJSON), &dkRaw); err != nil {
			return nil, eris.Wrapf(err, "sqlite: plan %s door-knock streets", p.ID)
		}
		if err := json.Unmarshal([]byte(pcJSON), &pcRaw); err != nil {
			return nil, eris.Wrapf(err, "sqlite: plan %s phone-call streets", p.ID)
		}
		p.DoorKnockStreets = model.DecodeDoorKnockStreets(dkRaw, p.ID)
		p.PhoneCallStreets = model.DecodePhoneCallStreets(pcRaw, p.ID)
		plans = append(plans, p)
	}
	return plans, eris.Wrap(rows.Err(), "sqlite: fetch plans iterate")
}

// FetchActivities returns an agent's activities, optionally narrowed to one
// raw suburb value.
func (s *SQLiteStore) FetchActivities(ctx context.Context, agentRef, suburb string) ([]model.Activity, error) {
	query := `SELECT id, agent_ref, activity_type, suburb, street_name, activity_date,
		knocks_made, calls_connected, calls_answered, desktop_appraisals, face_to_face_appraisals, tags, property_ref
		FROM activities WHERE agent_ref = ?`
	args := []any{agentRef}
	if suburb != "" {
		query += ` AND suburb = ?`
		args = append(args, suburb)
	}
	query += ` ORDER BY activity_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch activities")
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		var (
			a        model.Activity
			date     sql.NullString
			tagsJSON string
		)
		err := rows.Scan(&a.ID, &a.AgentRef, &a.Type, &a.Suburb, &a.Street, &date,
			&a.KnocksMade, &a.CallsConnected, &a.CallsAnswered,
			&a.DesktopAppraisals, &a.FaceToFaceAppraisals, &tagsJSON, &a.PropertyRef)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		a.Date = parseDate(date)
		if err := json.Unmarshal([]byte(tagsJSON), &a.Tags); err != nil {
			return nil, eris.Wrapf(err, "sqlite: activity %s tags", a.ID)
		}
		activities = append(activities, a)
	}
	return activities, eris.Wrap(rows.Err(), "sqlite: fetch activities iterate")
}

// FetchProperties returns property rows matching the filter.
func (s *SQLiteStore) FetchProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error) {
	query := `SELECT id, agency_name, agent_name, suburb, street_name, property_type,
		price, sold_price, commission_rate, contract_status, listed_date, sold_date
		FROM properties WHERE 1=1`
	var args []any
	if filter.Agency != "" {
		query += ` AND agency_name = ?`
		args = append(args, filter.Agency)
	}
	if filter.Suburb != "" {
		query += ` AND suburb = ?`
		args = append(args, filter.Suburb)
	}
	query += ` ORDER BY listed_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch properties")
	}
	defer rows.Close()

	var properties []model.Property
	for rows.Next() {
		var (
			p      model.Property
			listed sql.NullString
			sold   sql.NullString
		)
		err := rows.Scan(&p.ID, &p.AgencyName, &p.AgentName, &p.Suburb, &p.Street, &p.PropertyType,
			&p.Price, &p.SoldPrice, &p.CommissionRate, &p.ContractStatus, &listed, &sold)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan property")
		}
		p.ListedDate = parseDate(listed)
		if sold.Valid {
			t := parseDate(sold)
			if !t.IsZero() {
				p.SoldDate = &t
			}
		}
		properties = append(properties, p)
	}
	return properties, eris.Wrap(rows.Err(), "sqlite: fetch properties iterate")
}

// SavePlan upserts a plan row and publishes a change event.
func (s *SQLiteStore) SavePlan(ctx context.Context, plan model.Plan) error {
	kind := livesync.KindInsert
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	} else {
		var exists int
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM plans WHERE id = ?`, plan.ID)
		if err := row.Scan(&exists); err == nil && exists > 0 {
			kind = livesync.KindUpdate
		}
	}

	dkJSON, err := json.Marshal(plan.DoorKnockStreets)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal door-knock streets")
	}
	pcJSON, err := json.Marshal(plan.PhoneCallStreets)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phone-call streets")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (id, agent_ref, suburb, start_date, end_date, door_knock_streets, phone_call_streets,
			target_connects, target_desktop_appraisals, target_face_to_face_appraisals)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			agent_ref = excluded.agent_ref,
			suburb = excluded.suburb,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			door_knock_streets = excluded.door_knock_streets,
			phone_call_streets = excluded.phone_call_streets,
			target_connects = excluded.target_connects,
			target_desktop_appraisals = excluded.target_desktop_appraisals,
			target_face_to_face_appraisals = excluded.target_face_to_face_appraisals,
			updated_at = datetime('now')`,
		plan.ID, plan.AgentRef, plan.Suburb, formatDate(plan.StartDate), formatDate(plan.EndDate),
		string(dkJSON), string(pcJSON),
		plan.TargetConnects, plan.TargetDesktopAppraisals, plan.TargetFaceToFaceAppraisals,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save plan %s", plan.ID)
	}

	s.feed.Publish(livesync.Event{Table: livesync.TablePlans, Kind: kind, AgentRef: plan.AgentRef})
	return nil
}

// SaveActivity inserts an activity row and publishes a change event.
func (s *SQLiteStore) SaveActivity(ctx context.Context, activity model.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	tagsJSON, err := json.Marshal(activity.Tags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tags")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activities (id, agent_ref, activity_type, suburb, street_name, activity_date,
			knocks_made, calls_connected, calls_answered, desktop_appraisals, face_to_face_appraisals, tags, property_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.ID, activity.AgentRef, string(activity.Type), activity.Suburb, activity.Street,
		formatDate(activity.Date), activity.KnocksMade, activity.CallsConnected, activity.CallsAnswered,
		activity.DesktopAppraisals, activity.FaceToFaceAppraisals, string(tagsJSON), activity.PropertyRef,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save activity %s", activity.ID)
	}

	s.feed.Publish(livesync.Event{Table: livesync.TableActivities, Kind: livesync.KindInsert, AgentRef: activity.AgentRef})
	return nil
}

// SaveProperties inserts property rows in one transaction and publishes a
// single change event for the batch.
func (s *SQLiteStore) SaveProperties(ctx context.Context, properties []model.Property) (int64, error) {
	if len(properties) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save properties")
	}
	defer func() { _ = tx.Rollback() }()

	var n int64
	for _, p := range properties {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		var sold any
		if p.SoldDate != nil {
			sold = p.SoldDate.UTC().Format(dateLayout)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO properties (id, agency_name, agent_name, suburb, street_name, property_type,
				price, sold_price, commission_rate, contract_status, listed_date, sold_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.AgencyName, p.AgentName, p.Suburb, p.Street, p.PropertyType,
			p.Price, p.SoldPrice, p.CommissionRate, string(p.ContractStatus),
			formatDate(p.ListedDate), sold,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: save property %s", p.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save properties")
	}

	s.feed.Publish(livesync.Event{Table: livesync.TableProperties, Kind: livesync.KindInsert})
	return n, nil
}
