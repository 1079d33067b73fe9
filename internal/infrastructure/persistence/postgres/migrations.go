// Package postgres implements the PostgreSQL persistence layer.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: IDENTITY AND CONTENT HIERARCHY
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: users, courses, lessons, levels
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    login VARCHAR(50) NOT NULL UNIQUE,
    display_name VARCHAR(100) NOT NULL,
    user_type VARCHAR(20) NOT NULL DEFAULT 'student',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    school_id VARCHAR(50),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_user_type CHECK (user_type IN ('student', 'admin'))
);

CREATE INDEX IF NOT EXISTS idx_users_login ON users(login);
CREATE INDEX IF NOT EXISTS idx_users_active ON users(id) WHERE is_active;

CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    title VARCHAR(200) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lessons (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    title VARCHAR(200) NOT NULL,
    band VARCHAR(20) NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_band CHECK (band IN ('Beginner', 'Intermediate', 'Advanced'))
);

CREATE INDEX IF NOT EXISTS idx_lessons_course ON lessons(course_id, position);

CREATE TABLE IF NOT EXISTS levels (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    level_number INTEGER NOT NULL,
    difficulty VARCHAR(10) NOT NULL,
    beta DECIMAL(4,3) NOT NULL DEFAULT 0.5,
    points INTEGER NOT NULL DEFAULT 0,
    title VARCHAR(200) NOT NULL DEFAULT '',
    initial_code TEXT NOT NULL DEFAULT '',
    expected_output TEXT NOT NULL DEFAULT '',
    hint TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_difficulty CHECK (difficulty IN ('Easy', 'Medium', 'Hard')),
    CONSTRAINT valid_beta CHECK (beta >= 0.1 AND beta <= 1.0),
    CONSTRAINT valid_level_number CHECK (level_number >= 1),
    CONSTRAINT uq_level_variant UNIQUE (lesson_id, level_number, difficulty)
);

CREATE INDEX IF NOT EXISTS idx_levels_lesson ON levels(lesson_id, level_number);
`

const migration001Down = `
DROP TABLE IF EXISTS levels;
DROP TABLE IF EXISTS lessons;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ADAPTIVE PROGRESS AND ATTEMPT LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: student_progress, puzzle_attempts, completions, preferences
-- Version: 002

CREATE TABLE IF NOT EXISTS student_progress (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    level_id UUID NOT NULL REFERENCES levels(id) ON DELETE CASCADE,
    theta DECIMAL(6,4) NOT NULL DEFAULT 0,
    prev_theta DECIMAL(6,4) NOT NULL DEFAULT 0,
    beta DECIMAL(4,3) NOT NULL DEFAULT 0.5,
    prev_beta DECIMAL(4,3) NOT NULL DEFAULT 0.5,
    success_count INTEGER NOT NULL DEFAULT 0,
    fail_count INTEGER NOT NULL DEFAULT 0,
    total_attempts INTEGER NOT NULL DEFAULT 0,
    best_completion_time INTEGER,
    average_completion_time DECIMAL(10,2),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, level_id),
    CONSTRAINT valid_theta CHECK (theta >= -3 AND theta <= 3),
    CONSTRAINT valid_progress_beta CHECK (beta >= 0.1 AND beta <= 1.0),
    CONSTRAINT valid_counters CHECK (
        success_count >= 0 AND fail_count >= 0 AND
        total_attempts >= success_count + fail_count
    )
);

CREATE TABLE IF NOT EXISTS lesson_preferences (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    preferred_difficulty VARCHAR(10) NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, lesson_id),
    CONSTRAINT valid_preferred CHECK (preferred_difficulty IN ('Easy', 'Medium', 'Hard'))
);

CREATE TABLE IF NOT EXISTS puzzle_attempts (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    level_id UUID NOT NULL REFERENCES levels(id) ON DELETE CASCADE,
    lesson_id UUID REFERENCES lessons(id) ON DELETE SET NULL,
    success BOOLEAN NOT NULL,
    attempt_time INTEGER NOT NULL DEFAULT 0,
    theta_at_attempt DECIMAL(6,4) NOT NULL,
    beta_at_attempt DECIMAL(4,3) NOT NULL,
    difficulty VARCHAR(10) NOT NULL,
    attempt_id VARCHAR(100),
    code_submitted TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_attempt_time CHECK (attempt_time >= 0 AND attempt_time <= 3600)
);

-- Idempotency: one stored attempt per (client attempt id, user).
CREATE UNIQUE INDEX IF NOT EXISTS uq_attempts_idempotency
    ON puzzle_attempts(attempt_id, user_id) WHERE attempt_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_attempts_user_lesson
    ON puzzle_attempts(user_id, lesson_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_user_level
    ON puzzle_attempts(user_id, level_id, created_at DESC);

CREATE TABLE IF NOT EXISTS lesson_level_completions (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    level_id UUID NOT NULL REFERENCES levels(id) ON DELETE CASCADE,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, level_id)
);

CREATE INDEX IF NOT EXISTS idx_completions_user ON lesson_level_completions(user_id);
`

const migration002Down = `
DROP TABLE IF EXISTS lesson_level_completions;
DROP TABLE IF EXISTS puzzle_attempts;
DROP TABLE IF EXISTS lesson_preferences;
DROP TABLE IF EXISTS student_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: LEDGER, ACHIEVEMENTS, AUDIT
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: student_statistics, achievements, adaptive_logs, difficulty_audit
-- Version: 003

CREATE TABLE IF NOT EXISTS student_statistics (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    exp INTEGER NOT NULL DEFAULT 0,
    normalized_exp DECIMAL(7,6) NOT NULL DEFAULT 0,
    rank_name VARCHAR(30) NOT NULL DEFAULT 'novice',
    rank_index INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    total_success_count INTEGER NOT NULL DEFAULT 0,
    total_fail_count INTEGER NOT NULL DEFAULT 0,
    completed_achievements INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_exp CHECK (exp >= 0 AND exp <= 10000),
    CONSTRAINT valid_rank_index CHECK (rank_index >= 0 AND rank_index <= 9)
);

CREATE INDEX IF NOT EXISTS idx_statistics_exp ON student_statistics(exp DESC);
CREATE INDEX IF NOT EXISTS idx_statistics_streak ON student_statistics(longest_streak DESC);

CREATE TABLE IF NOT EXISTS achievements (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    achievement_type VARCHAR(50) NOT NULL,
    exp_reward INTEGER NOT NULL DEFAULT 0,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_achievement UNIQUE (user_id, achievement_type)
);

CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements(user_id);

CREATE TABLE IF NOT EXISTS adaptive_logs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    level_id UUID NOT NULL,
    success BOOLEAN NOT NULL,
    theta_before DECIMAL(6,4) NOT NULL,
    theta_after DECIMAL(6,4) NOT NULL,
    beta_before DECIMAL(4,3) NOT NULL,
    beta_after DECIMAL(4,3) NOT NULL,
    probability DECIMAL(7,6) NOT NULL DEFAULT 0,
    kernel_source VARCHAR(20) NOT NULL,
    applied_rule VARCHAR(50) NOT NULL DEFAULT '',
    attempt_time INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_adaptive_logs_user ON adaptive_logs(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS difficulty_audit (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    level_id UUID NOT NULL,
    lesson_id UUID,
    beta_before DECIMAL(4,3) NOT NULL,
    beta_after DECIMAL(4,3) NOT NULL,
    difficulty_from VARCHAR(10) NOT NULL,
    difficulty_to VARCHAR(10) NOT NULL,
    applied_rule VARCHAR(50) NOT NULL,
    evaluations JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_difficulty_audit_user ON difficulty_audit(user_id, created_at DESC);

-- difficulty_audit rows are evidence: updates and deletes are rejected.
CREATE OR REPLACE FUNCTION reject_difficulty_audit_mutation() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'difficulty_audit is write-once';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_difficulty_audit_write_once ON difficulty_audit;
CREATE TRIGGER trg_difficulty_audit_write_once
    BEFORE UPDATE OR DELETE ON difficulty_audit
    FOR EACH ROW EXECUTE FUNCTION reject_difficulty_audit_mutation();
`

const migration003Down = `
DROP TRIGGER IF EXISTS trg_difficulty_audit_write_once ON difficulty_audit;
DROP FUNCTION IF EXISTS reject_difficulty_audit_mutation;
DROP TABLE IF EXISTS difficulty_audit;
DROP TABLE IF EXISTS adaptive_logs;
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS student_statistics;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: MULTIPLAYER BATTLES
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: multiplayer_matches, match_participants, battle_challenges
-- Version: 004

CREATE TABLE IF NOT EXISTS multiplayer_matches (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    match_type VARCHAR(20) NOT NULL DEFAULT 'ranked',
    language VARCHAR(30) NOT NULL DEFAULT 'python',
    level_id UUID,
    cluster_id VARCHAR(100) NOT NULL DEFAULT '',
    match_score DECIMAL(5,4) NOT NULL DEFAULT 0,
    wager INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    started_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,
    duration_seconds INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_match_status CHECK (status IN ('pending', 'active', 'completed', 'cancelled')),
    CONSTRAINT valid_match_type CHECK (match_type IN ('ranked', 'challenge'))
);

CREATE INDEX IF NOT EXISTS idx_matches_status ON multiplayer_matches(status, created_at)
    WHERE status IN ('pending', 'active');

CREATE TABLE IF NOT EXISTS match_participants (
    match_id UUID NOT NULL REFERENCES multiplayer_matches(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    is_winner BOOLEAN,
    completed_code BOOLEAN NOT NULL DEFAULT FALSE,
    code_snapshot TEXT NOT NULL DEFAULT '',
    exp_gained INTEGER NOT NULL DEFAULT 0,
    exp_lost INTEGER NOT NULL DEFAULT 0,
    completion_time INTEGER NOT NULL DEFAULT 0,
    rank_at_join VARCHAR(30) NOT NULL DEFAULT '',
    theta_at_join DECIMAL(6,4) NOT NULL DEFAULT 0,
    beta_at_join DECIMAL(4,3) NOT NULL DEFAULT 0.5,
    success_count INTEGER NOT NULL DEFAULT 0,
    fail_count INTEGER NOT NULL DEFAULT 0,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (match_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_user ON match_participants(user_id);

CREATE TABLE IF NOT EXISTS battle_challenges (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    challenger_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    opponent_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    language VARCHAR(30) NOT NULL DEFAULT 'python',
    exp_wager INTEGER NOT NULL DEFAULT 100,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    match_id UUID REFERENCES multiplayer_matches(id) ON DELETE SET NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    responded_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_challenge_status CHECK (status IN ('pending', 'accepted', 'declined', 'expired')),
    CONSTRAINT valid_wager CHECK (exp_wager > 0)
);

CREATE INDEX IF NOT EXISTS idx_challenges_opponent ON battle_challenges(opponent_id)
    WHERE status = 'pending';
`

const migration004Down = `
DROP TABLE IF EXISTS battle_challenges;
DROP TABLE IF EXISTS match_participants;
DROP TABLE IF EXISTS multiplayer_matches;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: SESSIONS AND LEADERBOARD SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

const migration005Up = `
-- Migration: user_sessions, leaderboard_entries
-- Version: 005

CREATE TABLE IF NOT EXISTS user_sessions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    session_start TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    session_end TIMESTAMP WITH TIME ZONE,
    last_seen_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    puzzles_attempted INTEGER NOT NULL DEFAULT 0,
    puzzles_completed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_open ON user_sessions(user_id, session_start DESC)
    WHERE session_end IS NULL;
CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON user_sessions(last_seen_at)
    WHERE session_end IS NULL;

CREATE TABLE IF NOT EXISTS leaderboard_entries (
    board_type VARCHAR(20) NOT NULL,
    rank_position INTEGER NOT NULL,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    rank_name VARCHAR(30) NOT NULL DEFAULT '',
    exp INTEGER NOT NULL DEFAULT 0,
    score INTEGER NOT NULL DEFAULT 0,
    snapshot_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (board_type, rank_position),
    CONSTRAINT valid_board_type CHECK (board_type IN ('overall', 'multiplayer', 'achievements', 'streaks'))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_leaderboard_user ON leaderboard_entries(board_type, user_id);
`

const migration005Down = `
DROP TABLE IF EXISTS leaderboard_entries;
DROP TABLE IF EXISTS user_sessions;
`
