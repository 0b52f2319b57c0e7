// Moderation orchestration: global bans ("gban") and their reversal, relayed to a federation of cooperating bots through coordination channels.
//
// A gban moves each identity through a precedence check against its stored ban record, an atomic upsert of the record, paced posts to the coordination channels, and an optional mirror to a reputation service. Store failures stop processing of the affected identity and are returned; posting failures mark the identity as failed and processing continues; reputation service failures are only logged.
package automod
