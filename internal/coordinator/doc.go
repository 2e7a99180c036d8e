// Package coordinator drives a software-change workflow through its
// stages: the alignment gate first, then the sequential stages strictly
// in canonical order, then the parallel validator fan-out.
//
// All durable state goes through the artifact store and checkpoint
// manager; the coordinator itself holds nothing a crash could lose. A
// stage failure leaves the checkpoint untouched so a resumed run
// retries exactly that stage.
package coordinator
