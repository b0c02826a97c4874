// Package postgres implements the PostgreSQL persistence layer of the
// gateway.
package postgres

// GetMigrations returns all embedded migrations, in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_identity",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_substrate",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_screening",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: IDENTITY (users, cases, invites)
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create identity tables
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    telegram_id BIGINT NOT NULL UNIQUE,
    role VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('specialist', 'client')),
    CONSTRAINT valid_status CHECK (status IN ('active', 'blocked'))
);

CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_id);

-- A case is the working context of one specialist/client pair. Artifacts
-- and link tokens hang off it.
CREATE TABLE IF NOT EXISTS cases (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    specialist_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    client_label VARCHAR(200) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    archived_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_case_status CHECK (status IN ('active', 'archived'))
);

CREATE INDEX IF NOT EXISTS idx_cases_specialist ON cases(specialist_id);
CREATE INDEX IF NOT EXISTS idx_cases_specialist_active ON cases(specialist_id, created_at DESC) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS invites (
    token TEXT PRIMARY KEY,
    creator_id UUID REFERENCES users(id) ON DELETE SET NULL,
    max_uses INTEGER NOT NULL DEFAULT 1,
    used_count INTEGER NOT NULL DEFAULT 0,
    expires_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_uses CHECK (used_count >= 0 AND used_count <= max_uses)
);
`

const migration001Down = `
DROP TABLE IF EXISTS invites;
DROP TABLE IF EXISTS cases;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SUBSTRATE (dedup, fsm, link tokens, artifacts)
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create shared substrate tables
-- Version: 002

-- Exactly-once gate. INSERT ... ON CONFLICT DO NOTHING on the primary key
-- is the only synchronization the dispatcher needs.
CREATE TABLE IF NOT EXISTS update_dedup (
    bot_id VARCHAR(30) NOT NULL,
    update_id BIGINT NOT NULL,
    chat_id BIGINT NOT NULL DEFAULT 0,
    received_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (bot_id, update_id)
);

CREATE INDEX IF NOT EXISTS idx_update_dedup_received ON update_dedup(received_at);

-- Durable per-chat FSM state, last-writer-wins.
CREATE TABLE IF NOT EXISTS fsm_states (
    bot_id VARCHAR(30) NOT NULL,
    chat_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    role VARCHAR(20) NOT NULL,
    state VARCHAR(50) NOT NULL,
    state_payload JSONB NOT NULL DEFAULT '{}'::jsonb,
    context_id UUID,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (bot_id, chat_id)
);

-- One-shot cross-bot handoff tokens. used_at doubles as the consume CAS.
CREATE TABLE IF NOT EXISTS link_tokens (
    jti UUID PRIMARY KEY,
    run_id UUID NOT NULL,
    service_id VARCHAR(30) NOT NULL,
    context_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    role VARCHAR(20) NOT NULL,
    subject_id BIGINT NOT NULL,
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    used_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(service_id, run_id),
    CONSTRAINT valid_token_role CHECK (role IN ('specialist', 'client'))
);

CREATE INDEX IF NOT EXISTS idx_link_tokens_context ON link_tokens(context_id);

-- Append-only run outputs. UNIQUE(run_id, service_id) makes retried
-- completions idempotent.
CREATE TABLE IF NOT EXISTS artifacts (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    context_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    service_id VARCHAR(30) NOT NULL,
    run_id UUID NOT NULL,
    specialist_telegram_id BIGINT NOT NULL,
    payload JSONB NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(run_id, service_id)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_context ON artifacts(context_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_artifacts_context_service ON artifacts(context_id, service_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS artifacts;
DROP TABLE IF EXISTS link_tokens;
DROP TABLE IF EXISTS fsm_states;
DROP TABLE IF EXISTS update_dedup;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: SCREENING (assessments, simulator profiles)
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create screening and simulator tables
-- Version: 003

CREATE TABLE IF NOT EXISTS screening_assessments (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    run_id UUID NOT NULL UNIQUE,
    context_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    link_token_jti UUID,
    specialist_telegram_id BIGINT NOT NULL,
    client_telegram_id BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'created',
    phase INTEGER NOT NULL DEFAULT 1,
    phase1_index INTEGER NOT NULL DEFAULT 0,
    phase2_questions INTEGER NOT NULL DEFAULT 0,
    phase3_questions INTEGER NOT NULL DEFAULT 0,
    engine_state JSONB NOT NULL DEFAULT '{}'::jsonb,
    visited_nodes JSONB NOT NULL DEFAULT '[]'::jsonb,
    report_json JSONB,
    report_text TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_assessment_status CHECK (status IN ('created', 'active', 'completed')),
    CONSTRAINT valid_phase CHECK (phase BETWEEN 1 AND 3)
);

CREATE INDEX IF NOT EXISTS idx_assessments_context ON screening_assessments(context_id, created_at DESC);

-- Aggregated supervision profile, one row per specialist.
CREATE TABLE IF NOT EXISTS simulator_profiles (
    specialist_telegram_id BIGINT PRIMARY KEY,
    sessions_count INTEGER NOT NULL DEFAULT 0,
    avg_tsi DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_green_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_yellow_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_red_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_trust_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS simulator_profiles;
DROP TABLE IF EXISTS screening_assessments;
`
