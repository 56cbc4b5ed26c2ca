/*
Package security provides the credentials vault.

Connector credentials arrive in installation specs and have to survive
in the workspace's persistent registry. The vault seals them with
AES-256-GCM under a per-workspace key generated on first use, so the
registry manifest never holds plaintext secrets.
*/
package security
