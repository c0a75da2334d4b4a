package pgwire

import "strconv"

// parseRowsAffected extracts the trailing row count from a CommandComplete
// tag ("SELECT 3", "INSERT 0 5", "DELETE 2", "UPDATE 1"). Tags with no
// trailing count ("BEGIN", "COMMIT", "CREATE TABLE") yield 0.
func parseRowsAffected(tag string) int64 {
	i := len(tag)
	for i > 0 && tag[i-1] >= '0' && tag[i-1] <= '9' {
		i--
	}
	if i == len(tag) {
		return 0
	}

	n, err := strconv.ParseInt(tag[i:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
