/*
The sync package implements nowsync's sync algorithm. It materializes remote
records as files in the workspace's source directory, and pushes local edits
back to the record field they came from.

Every file written by a resync is tracked in the metadata store with the
record it came from, the field it holds, and the hash of its contents. The
hash is what lets nowsync notice when either side changed since the last
sync:

 1. Upload -- The remote field is fetched and compared with the stored hash.
    If it changed, someone edited the record on the instance, and the user has
    to confirm before their local copy overwrites it.
 2. Pull -- The same check in the opposite direction. The local file is
    compared with the remote field, and the user has to confirm before the
    local copy is replaced.

Hashes are always computed over content with normalized line endings, so
that editors that write CRLF don't make every file look modified.

Only one operation runs at a time. A second operation started while one is
running fails with errors.ErrOperationInProgress.
*/
package sync
