package auth

import (
	"discord-rag-backend/dao"
	"discord-rag-backend/model"
	"discord-rag-backend/request"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

func UserRegister(req request.UserRegisterRequest) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Avatar:       req.Avatar,
	}
	if err := dao.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

func UserLogin(req request.UserLoginRequest) (*model.User, error) {
	user, err := dao.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
