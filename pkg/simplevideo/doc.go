// Package simplevideo manages the lifecycle of generated listing videos:
// creating asset records, storing the produced artifact in object storage,
// reconciling status from generator callbacks, and assembling owner
// galleries with freshly minted download URLs.
//
// The package exposes a single Service interface backed by a pluggable
// Repository (memory, Postgres, GORM) and a Gateway over a BlobStore
// (memory, filesystem, S3, MinIO, GCS). Implementations live under the
// repo and storage subpackages.
//
// Access Control
//
// Every stored object carries a per-asset secret in its object metadata.
// Download URLs and deletes are only issued after the gateway reads the
// object's metadata back and compares the stored secret with the one held
// in the asset record. Download URLs are never persisted; each request
// mints a fresh, short-lived URL.
package simplevideo
