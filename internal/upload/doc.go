// Package upload sends a recorded clip to the processing endpoint as a
// multipart form and resolves the audio locator in its JSON reply.
package upload
