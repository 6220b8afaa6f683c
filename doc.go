// Package audioindex indexes a music library document in bounded memory
// and reads its records on demand.
//
// The library document is a JSON file written by an offline indexing tool.
// It lists every audio file in a flat "allFiles" array and every folder in
// a "musicFolders" array. On small devices the document can be far larger
// than available memory, so audioindex never parses it as a whole: it
// scans the document through a fixed-size window, records the byte offset
// of each record, and later reads one record at a time from its offset.
//
// # Quick Start
//
//	idx, err := audioindex.Open("/sdcard/ESP32_MUSIC/index.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer idx.Close()
//
//	fmt.Printf("%d files in %d folders\n", idx.FileCount(), idx.FolderCount())
//
//	rec, err := idx.File(0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(audioindex.FullPath("/sdcard", rec.Path))
//
// # Document Shape
//
//	{
//	  "version": "1.1",
//	  "totalFiles": 2,
//	  "allFiles": [
//	    {"name": "a.pcm", "path": "Pop/a.pcm", "sampleRate": 44100,
//	     "bitDepth": 16, "channels": 2, "folderIndex": 0,
//	     "song": "A", "album": "Hits", "artist": "Band"}
//	  ],
//	  "musicFolders": [
//	    {"name": "Pop", "fileCount": 1, "firstFileIndex": 0}
//	  ]
//	}
//
// Only this subset of JSON is understood. Records are flat objects;
// strings are copied without escape decoding; numbers are plain integers.
// Keys are found by substring search inside a record, so a string value
// that itself contains a quoted key followed by a colon can shadow the
// real field.
//
// # Errors
//
// A document without a file array fails with *MissingArrayError. A missing
// folder array leaves the index with no folders and a warning. Objects
// whose braces never close are skipped with a warning, or fail the open
// with *MalformedObjectError under WithStrictParsing. Reading a record
// outside the discovered range fails with *OutOfRangeError, and storage
// failures are reported as *IOError.
//
// Use OpenOrEmpty when the rest of the program should keep running with an
// empty library if the document is missing or unreadable.
//
// # Snapshots
//
// Indexing reads the whole document. WriteSnapshot stores the offsets with
// a hash of the document, and LoadSnapshot restores them after checking
// the document is unchanged.
package audioindex
