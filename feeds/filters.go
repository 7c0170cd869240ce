package feeds

import (
	"github.com/gagliardetto/solana-go"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"

	"github.com/stakewatch/sentinel/types"
)

// Filter group names sent with the subscribe request. The close group is an
// explicit address list: once an account is closed it no longer carries the
// discriminator, so ownership/memcmp matching can never see it go away.
const (
	filterRewardPoolCreateUpdate   = "reward_pool_create_update"
	filterUserPositionCreateUpdate = "user_position_create_update"
	filterUserPositionClose        = "user_position_close"
)

// BuildAccountFilters derives the three-group filter map from the current
// UserPosition key set. Must be rebuilt (and re-sent) whenever that set
// changes so the close watch stays exhaustive.
func BuildAccountFilters(programID solana.PublicKey, positionKeys []solana.PublicKey) map[string]*pb.SubscribeRequestFilterAccounts {
	owner := []string{programID.String()}

	closeWatch := make([]string, 0, len(positionKeys))
	for _, key := range positionKeys {
		closeWatch = append(closeWatch, key.String())
	}

	return map[string]*pb.SubscribeRequestFilterAccounts{
		filterRewardPoolCreateUpdate: {
			Owner:   owner,
			Filters: []*pb.SubscribeRequestFilterAccountsFilter{memcmpFilter(0, types.RewardPoolDiscriminator())},
		},
		// RewardPool accounts are never closed, so no address list for them.
		filterUserPositionCreateUpdate: {
			Owner:   owner,
			Filters: []*pb.SubscribeRequestFilterAccountsFilter{memcmpFilter(0, types.UserPositionDiscriminator())},
		},
		filterUserPositionClose: {
			Account: closeWatch,
		},
	}
}

// BuildSubscribeRequest wraps the filter map in a full subscribe request.
func BuildSubscribeRequest(commitment pb.CommitmentLevel, filters map[string]*pb.SubscribeRequestFilterAccounts) *pb.SubscribeRequest {
	return &pb.SubscribeRequest{
		Accounts:   filters,
		Commitment: &commitment,
	}
}

func memcmpFilter(offset uint64, data []byte) *pb.SubscribeRequestFilterAccountsFilter {
	return &pb.SubscribeRequestFilterAccountsFilter{
		Filter: &pb.SubscribeRequestFilterAccountsFilter_Memcmp{
			Memcmp: &pb.SubscribeRequestFilterAccountsFilterMemcmp{
				Offset: offset,
				Data:   &pb.SubscribeRequestFilterAccountsFilterMemcmp_Bytes{Bytes: data},
			},
		},
	}
}
