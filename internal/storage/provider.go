package storage

import "montage/internal/ports"

// Provider is the storage contract used by the asset resolver and the
// result publisher. It is an alias to ports.StorageProvider to keep
// call-sites simple.
type Provider = ports.StorageProvider
