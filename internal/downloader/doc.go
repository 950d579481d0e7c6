// Package downloader fetches the files of a dump job into the output
// directory.
//
// Each file is handled by DownloadOne: a file already present with the
// published size is skipped without touching the network, anything else is
// streamed into the run's staging area and renamed into place once its length
// checks out. The final path therefore only ever holds complete files.
//
// # Usage
//
// Run drives a whole job:
//
//	dl := downloader.New(httpClient, downloader.Options{
//	    OutDir:       "/data/dumps",
//	    CanonicalURL: metadata.DefaultBaseURL,
//	    MirrorURL:    "https://mirror.example.org/dumps",
//	})
//	summary, err := downloader.Run(ctx, meta, dl, downloader.Request{
//	    Dump:    "enwiki",
//	    Version: dump.Latest(),
//	    Job:     "metacurrentdumprecombine",
//	})
//
// Metadata always comes from the canonical host. Only the file bodies are
// taken from the mirror when one is configured.
//
// Files are processed sequentially in name order and the first failure stops
// the run. Failures are returned as *RunError, which unwraps to the
// underlying sentinel from package dump.
package downloader
