// Package dbftconsensus contains the core types shared by every part
// of the dBFT engine: validators and validator sets,
// the closed set of consensus message variants,
// signed messages, blocks, and the typed errors returned
// when an inbound message is rejected.
//
// Types in this package carry no behavior that depends on
// wire encoding or on the mutable consensus state;
// see dbftcodec and dbftstate for those.
package dbftconsensus
