// Package notes implements a confidential note-transfer ledger proven one
// step at a time with zero-knowledge proofs.
//
// Overview:
//   - Value lives in notes: hiding commitments over (asset, owner, value, step, parent, slot)
//   - Step 0 of a chain issues a note; every later step splits one note into two,
//     preserving total value
//   - Verifiers see only a step counter, the asset hash, the sender identity,
//     two state digests and a nullifier; amounts, receivers and keys stay private
//   - One Groth16 proof per step attests that the published claims are consistent
//
// Security Model:
//   - MiMC over BN254 for note, state, nullifier, sighash and identity derivations
//   - EdDSA on the BN254-embedded twisted Edwards curve authorizes every step;
//     the signature is checked inside the circuit against the step transcript
//   - Poseidon derives asset identifiers from issuance terms
//   - All randomness comes from crypto/rand
//   - Nullifiers make spent notes detectable; global double-spend bookkeeping is
//     left to the surrounding ledger
//
// Usage:
//   - Compile the circuit with Compile, create keys with SetupOrLoadKeys
//   - Build transactions with the issue and split packages, persist them with Chain
//   - Use NewParticipant and RunServer for REST-based transfer scenarios
//
// WARNING: This package is for research and educational purposes. Use with caution in production environments.
package notes
