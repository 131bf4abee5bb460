package journal

// Decimals are stored as TEXT so values read back compare equal to the
// ones the ledger produced.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	dataset TEXT NOT NULL,
	strategy TEXT NOT NULL,
	symbols TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	events INTEGER NOT NULL,
	fills INTEGER NOT NULL,
	digest TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	account TEXT NOT NULL,
	ts INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	balance TEXT NOT NULL,
	long TEXT NOT NULL,
	short TEXT NOT NULL,
	account_value TEXT NOT NULL,
	price TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_history_account ON history(run_id, account);
`
