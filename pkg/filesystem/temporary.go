package filesystem

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary files
	// created by fsobserve. Using this prefix guarantees that any such files
	// are excluded by PathFilter's hidden-file rule rather than being
	// observed as transient churn.
	TemporaryNamePrefix = ".fsobserve-temporary-"
)
