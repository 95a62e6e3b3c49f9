/*
Package controller implements the reconciliation core of the edge agent:
the watch-driven state machine that projects an EdgeDeployment custom
resource onto Kubernetes Deployments, Services and image-pull Secrets, and
the status tracker that synthesizes per-module runtime records from Pod
events.

# Reconciliation

One CR event triggers one converge step: list owned objects by the device
label selector, synthesize the desired set, classify each object as
create, update, delete or noop, then apply in ordered phases (deletes,
creates, updates). Equality is judged against the creation-string
annotation — the JSON of the object as last written — never against the
live object, which carries server-populated fields. The comparison is
intentionally weak (names, labels, service type, port count, container
images): a missed diff self-heals on the next pass, while a deep compare
would churn forever against API-server defaulting.

Services are never updated in place because ClusterIP is immutable; a
changed Service is deleted and re-created, with the delete phase fully
awaited before creates begin.

# Status

The Pod watch feeds a mutex-guarded map from module name to runtime
record. Readers receive snapshots; mutating a snapshot never affects
subsequent reads.

# Failure model

Every transient error is logged and absorbed — the next event converges
again. Only watch-establishment failures and errors classified fatal
terminate the process, which the surrounding orchestrator restarts.
*/
package controller
