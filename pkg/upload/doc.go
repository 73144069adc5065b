// Package upload moves file contents from the browser to the server over
// the page's websocket.
//
// A handler asks for the files selected in an <input type="file">:
//
//	files, err := input.Files(ctx, false)
//
// Each File carries its metadata only. Its content is fetched on demand with
// a _saveFile instruction; the client answers with an ordered stream of
// chunks followed by exactly one empty chunk marked end. Text files arrive
// as JSON strings, binary files (File.Binary) as arrays of byte values.
//
//	for _, f := range files {
//	    f.Binary = true
//	    id, err := f.SaveTo(ctx, store)
//	    ...
//	}
//
// A stream that stops before the end marker is never treated as success:
// Chunks, Save, ReadAll and SaveTo return ErrIncompleteTransfer.
//
// # Storage
//
// DiskStore and S3Store hold transferred files until they are claimed.
// DownloadHandler serves a stored file back to the browser once, which is
// how a page offers a file for download.
package upload
