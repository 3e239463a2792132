package domain

// KeyPrefix namespaces the Redis keys queryforge owns outside corpus indexes.
const KeyPrefix = "queryforge:"
