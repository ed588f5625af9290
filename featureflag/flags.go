package featureflag

type Flag string

const (
	// Chunks of nodes that stop being displayed are dropped instead of being
	// parked in the chunk pool.
	FlagDisableChunkRecycling Flag = "DISABLE_CHUNK_RECYCLING"

	// Missing chunk meshes are generated one after another on the frame
	// goroutine.
	FlagDisableParallelMeshing Flag = "DISABLE_PARALLEL_MESHING"

	// Tree snapshots only carry counts, without the leaf listing.
	FlagDisableTreeSnapshot Flag = "DISABLE_TREE_SNAPSHOT"

	// Viewer feed connections are not answered with tick summaries.
	FlagDisableViewerFeedSummary Flag = "DISABLE_VIEWER_FEED_SUMMARY"
)
