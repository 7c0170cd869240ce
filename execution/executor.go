package execution

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/stakewatch/sentinel/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACTION EXECUTOR
// ═══════════════════════════════════════════════════════════════════════════════
//
// Builds, signs and submits the program transactions the scheduler fires:
//
//   resolve_round          - rolls a pool's reward round over once its
//                            minimum duration has elapsed
//   claim_stakes           - claims pending rewards on a participant's behalf
//   distribute_fees        - forwards accrued protocol fees, priced with the
//                            signed trading-price batch
//   update_pool_valuation  - refreshes the pool's assets-under-management
//
// Transactions are priced with the sampled priority fee and sent with
// skip-preflight and zero RPC retries; the scheduler re-fires on the next
// tick if the state didn't change, so the program must cheaply reject
// duplicates (it does).
//
// ═══════════════════════════════════════════════════════════════════════════════

// Compute unit limits per action, measured against the deployed program.
const (
	resolveRoundCULimit    uint32 = 400_000
	claimStakesCULimit     uint32 = 400_000
	distributeFeesCULimit  uint32 = 300_000
	updateValuationCULimit uint32 = 400_000
)

// PDA seeds used by the staking program.
var (
	seedTransferAuthority = []byte("transfer_authority")
	seedStakedTokenVault  = []byte("staked_token_vault")
	seedRewardTokenVault  = []byte("reward_token_vault")
	seedFeeVault          = []byte("fee_vault")
)

// Executor signs and submits program transactions.
type Executor struct {
	rpc       *rpc.Client
	payer     solana.PrivateKey
	programID solana.PublicKey
}

func NewExecutor(client *rpc.Client, payer solana.PrivateKey, programID solana.PublicKey) *Executor {
	return &Executor{rpc: client, payer: payer, programID: programID}
}

// ResolveRound rolls over the current reward round for a pool.
func (e *Executor) ResolveRound(ctx context.Context, pool solana.PublicKey, feeRate uint64) error {
	authority, err := e.pda(seedTransferAuthority)
	if err != nil {
		return err
	}
	stakedVault, err := e.pda(seedStakedTokenVault, pool.Bytes())
	if err != nil {
		return err
	}
	rewardVault, err := e.pda(seedRewardTokenVault, pool.Bytes())
	if err != nil {
		return err
	}

	ix := solana.NewInstruction(e.programID, solana.AccountMetaSlice{
		solana.Meta(e.payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(pool).WRITE(),
		solana.Meta(stakedVault).WRITE(),
		solana.Meta(rewardVault).WRITE(),
		solana.Meta(authority),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
	}, types.InstructionDiscriminator("resolve_round"))

	sig, err := e.send(ctx, []solana.Instruction{ix}, feeRate, resolveRoundCULimit)
	if err != nil {
		return fmt.Errorf("resolve round for %s: %w", pool, err)
	}
	log.Info().Str("pool", pool.String()).Str("tx", sig.String()).Msg("⏱ round resolved")
	return nil
}

// Claim claims all pending stake rewards for a position on the owner's
// behalf, paying out to the owner's associated token account for rewardMint.
func (e *Executor) Claim(ctx context.Context, position, owner solana.PublicKey, feeRate uint64, rewardMint solana.PublicKey) error {
	authority, err := e.pda(seedTransferAuthority)
	if err != nil {
		return err
	}
	rewardVault, err := e.pda(seedRewardTokenVault, rewardMint.Bytes())
	if err != nil {
		return err
	}
	rewardAccount, _, err := solana.FindAssociatedTokenAddress(owner, rewardMint)
	if err != nil {
		return fmt.Errorf("derive reward token account: %w", err)
	}

	ix := solana.NewInstruction(e.programID, solana.AccountMetaSlice{
		solana.Meta(e.payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(owner),
		solana.Meta(position).WRITE(),
		solana.Meta(rewardAccount).WRITE(),
		solana.Meta(rewardVault).WRITE(),
		solana.Meta(authority),
		solana.Meta(rewardMint),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
	}, types.InstructionDiscriminator("claim_stakes"))

	sig, err := e.send(ctx, []solana.Instruction{ix}, feeRate, claimStakesCULimit)
	if err != nil {
		return fmt.Errorf("claim stakes for %s: %w", position, err)
	}
	log.Info().
		Str("position", position.String()).
		Str("owner", owner.String()).
		Str("tx", sig.String()).
		Msg("💰 stakes claimed")
	return nil
}

// DistributeFees forwards accrued protocol fees, attaching the signed
// trading-price batch the program verifies on-chain.
func (e *Executor) DistributeFees(ctx context.Context, pool solana.PublicKey, feeRate uint64, prices *PriceBatch) error {
	authority, err := e.pda(seedTransferAuthority)
	if err != nil {
		return err
	}
	feeVault, err := e.pda(seedFeeVault, pool.Bytes())
	if err != nil {
		return err
	}

	data := append(types.InstructionDiscriminator("distribute_fees"), encodePriceBatch(prices)...)
	ix := solana.NewInstruction(e.programID, solana.AccountMetaSlice{
		solana.Meta(e.payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(pool).WRITE(),
		solana.Meta(feeVault).WRITE(),
		solana.Meta(authority),
		solana.Meta(solana.TokenProgramID),
	}, data)

	sig, err := e.send(ctx, []solana.Instruction{ix}, feeRate, distributeFeesCULimit)
	if err != nil {
		return fmt.Errorf("distribute fees for %s: %w", pool, err)
	}
	log.Info().Str("pool", pool.String()).Str("tx", sig.String()).Msg("fees distributed")
	return nil
}

// UpdatePoolValuation refreshes the pool's assets-under-management figure.
func (e *Executor) UpdatePoolValuation(ctx context.Context, pool solana.PublicKey, feeRate uint64) error {
	authority, err := e.pda(seedTransferAuthority)
	if err != nil {
		return err
	}

	ix := solana.NewInstruction(e.programID, solana.AccountMetaSlice{
		solana.Meta(e.payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(pool).WRITE(),
		solana.Meta(authority),
	}, types.InstructionDiscriminator("update_pool_valuation"))

	sig, err := e.send(ctx, []solana.Instruction{ix}, feeRate, updateValuationCULimit)
	if err != nil {
		return fmt.Errorf("update valuation for %s: %w", pool, err)
	}
	log.Info().Str("pool", pool.String()).Str("tx", sig.String()).Msg("pool valuation updated")
	return nil
}

func (e *Executor) pda(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, e.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive program address: %w", err)
	}
	return addr, nil
}

func (e *Executor) send(ctx context.Context, instructions []solana.Instruction, feeRate uint64, cuLimit uint32) (solana.Signature, error) {
	full := make([]solana.Instruction, 0, len(instructions)+2)
	full = append(full,
		computebudget.NewSetComputeUnitPriceInstruction(feeRate).Build(),
		computebudget.NewSetComputeUnitLimitInstruction(cuLimit).Build(),
	)
	full = append(full, instructions...)

	recent, err := e.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(full, recent.Value.Blockhash, solana.TransactionPayer(e.payer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.payer.PublicKey()) {
			return &e.payer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	// No preflight, no RPC-side retries: the scheduler re-fires on the next
	// tick if the state didn't change.
	maxRetries := uint(0)
	sig, err := e.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

func encodePriceBatch(batch *PriceBatch) []byte {
	out := make([]byte, 0, 4+len(batch.Prices)*17+65)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(batch.Prices)))
	out = append(out, u32[:]...)
	var u64 [8]byte
	for _, p := range batch.Prices {
		out = append(out, p.FeedID)
		binary.LittleEndian.PutUint64(u64[:], p.RawPrice)
		out = append(out, u64[:]...)
		binary.LittleEndian.PutUint64(u64[:], uint64(p.Timestamp))
		out = append(out, u64[:]...)
	}
	out = append(out, batch.Signature[:]...)
	out = append(out, batch.RecoveryID)
	return out
}
