package vault

// Config configures the notes vault.
type Config struct {
	Path        string // Vault directory; created if missing
	Branch      string // Branch of a freshly initialized repo (default "main")
	AuthorName  string // Commit author (default "lifecycle")
	AuthorEmail string // Commit author email (default "lifecycle@localhost")
}

// Info describes an opened vault.
type Info struct {
	Path   string // Absolute path to the vault
	Branch string // Current branch
	Head   string // Current HEAD commit hash; empty before the first commit
	Fresh  bool   // True if Open initialized the repository
}

// Change is one entry of the working tree status.
type Change struct {
	Code string // Two-letter porcelain status code, e.g. " M" or "??"
	Path string
}

// CommitResult represents the outcome of a commit attempt.
type CommitResult struct {
	Committed bool   // False when there was nothing to commit
	Head      string // HEAD after the attempt
	Files     int    // Number of changed paths included
}
