// Package progress reports download progress and formats byte counts.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalFiles: len(files),
//	    TotalSize:  totalBytes,
//	    Label:      "enwiki 20230301 metacurrentdumprecombine",
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.FileStarted(name)
//	io.Copy(io.MultiWriter(f, reporter), body)
//	reporter.FileCompleted()
//
// # Output Format
//
//	[wmd] Downloading: enwiki 20230301 metacurrentdumprecombine
//	[wmd] Files: 27 | Total size: 24.31 GB
//	[wmd] Progress: 45.2% | 10.99 GB / 24.31 GB | Speed: 52.10 MB/s | ETA: 4m 15s
//	[wmd] Files: 12/27 | Current: enwiki-20230301-pages-meta-current13.xml.bz2
//
// Sizes use SI scales (1 kB = 1000 B).
package progress
