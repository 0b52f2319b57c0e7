// Cache for ban-record lookups on the hot path (every join and message checked against the ban list), with a fixed TTL and explicit purging.
//
// Includes an interface and implementations using redis and in-process memory.
package cachestore
