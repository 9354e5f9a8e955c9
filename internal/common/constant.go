package common

// LocatorScheme prefixes every object-store locator persisted for a file.
const LocatorScheme = "s3://"

// DefaultChunkSize is the multipart part and download chunk size.
const DefaultChunkSize = 8 << 20
