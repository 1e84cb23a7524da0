// Package media persists entry attachments in the local store. Blobs are
// stored already encrypted; once uploaded the row keeps the remote URL and the
// local blob may be dropped.
package media
