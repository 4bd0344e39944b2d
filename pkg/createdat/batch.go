package createdat

import (
	"io/fs"
	"runtime"
	"sync"
)

// ResolveAll resolves every path using up to workers goroutines. Results are
// positional: out[i] belongs to paths[i] regardless of scheduling.
//
// workers <= 0 means runtime.NumCPU().
func ResolveAll(fsys fs.FS, paths []string, opts Options, workers int) []Result {
	detailed := ResolveAllDetailed(fsys, paths, opts, workers)
	out := make([]Result, len(detailed))
	for i, d := range detailed {
		out[i] = d.Best
	}
	return out
}

// ResolveAllDetailed is ResolveAll returning every considered timestamp.
func ResolveAllDetailed(fsys fs.FS, paths []string, opts Options, workers int) []DetailedResult {
	out := make([]DetailedResult, len(paths))
	if len(paths) == 0 {
		return out
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = ResolveDetailed(fsys, paths[i], opts)
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out
}
