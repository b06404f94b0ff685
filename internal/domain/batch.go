package domain

// RepositoryBatch is a group of repositories exported together by one migration
type RepositoryBatch struct {
	Index        int      // position among the run's batches, 0-based
	Repositories []string // full names, "org/repo"
}

// Size returns the number of repositories in the batch
func (b RepositoryBatch) Size() int {
	return len(b.Repositories)
}
